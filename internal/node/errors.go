package node

import "fmt"

// FatalInvariantError marks one of the three safety violations spec.md §7
// calls fatal: a finality conflict at a height, a negative balance during
// finalized replay, or a nonce mismatch during finalized replay. The
// driver recognizes this type with errors.As and halts the simulation.
type FatalInvariantError struct {
	Node int
	Kind string // "finality_conflict" | "negative_balance" | "nonce_mismatch"
	Msg  string
}

func (e *FatalInvariantError) Error() string {
	return fmt.Sprintf("node %d: fatal invariant violation (%s): %s", e.Node, e.Kind, e.Msg)
}
