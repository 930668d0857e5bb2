// Package chain holds the simulator's immutable data model: transactions
// and blocks. Neither type is mutated after construction; a Block crossing
// a node boundary travels by value (a serialized copy), never by pointer.
//
// Grounded on original_source/models.py field-for-field; the wire shape
// matches spec.md §6 "Block wire format" exactly.
package chain

import "strconv"

// Algo identifies which production algorithm minted a block.
type Algo string

const (
	AlgoGenesis Algo = "genesis"
	AlgoPow     Algo = "pow"
	AlgoHybrid  Algo = "hybrid"
)

// Tx is a transfer from one node to another. Immutable once constructed.
type Tx struct {
	From   int    `json:"from"`
	To     int    `json:"to"`
	Amount int64  `json:"amount"`
	Nonce  int64  `json:"nonce"`
	Tid    string `json:"tid"`
}

// Block is a node in the append-only block DAG. Immutable once
// constructed; Bhash is its content-derived identity.
type Block struct {
	Parent     string `json:"parent"` // empty only for genesis
	Height     int64  `json:"height"`
	Proposer   int    `json:"proposer"` // -1 for genesis
	Algo       Algo   `json:"algo"`
	Difficulty int64  `json:"difficulty"`
	StakeEpoch int64  `json:"stake_epoch"`
	RndTag     string `json:"rnd_tag"`
	Nonce      int64  `json:"nonce"`
	Txs        []Tx   `json:"txs"`
	Bhash      string `json:"bhash"`
	Work       int64  `json:"work"`
}

// Header returns the ASCII preimage "<parent>|<height>|<proposer>|<algo>"
// that, concatenated with the big-endian nonce, hashes to Bhash.
func Header(parent string, height int64, proposer int, algo Algo) []byte {
	return []byte(headerString(parent, height, proposer, algo))
}

func headerString(parent string, height int64, proposer int, algo Algo) string {
	return parent + "|" + strconv.FormatInt(height, 10) + "|" +
		strconv.Itoa(proposer) + "|" + string(algo)
}
