// Package network models the simulator's one-way, lossy/partitionable
// gossip link: a virtual clock, pairwise message delay, and a partition
// predicate. It owns the event.Queue; the simulation driver is the only
// mutator of the clock.
//
// Grounded on original_source/network.py for exact delay/connected
// semantics, and on LarryRuane-minesim for the pattern of a single struct
// owning both the clock and the heap.
package network

import (
	"math/big"

	"github.com/haphan2706/consensus-simnet/internal/config"
	"github.com/haphan2706/consensus-simnet/internal/event"
	"github.com/haphan2706/consensus-simnet/internal/hashx"
)

// Network owns virtual time and the shared event queue.
type Network struct {
	cfg    config.Config
	TimeMs int64
	Evt    *event.Queue
}

// New constructs a Network at t=0 with an empty event queue.
func New(cfg config.Config) *Network {
	return &Network{cfg: cfg, Evt: event.New()}
}

// inPartitionWindow reports whether tMs falls inside the configured
// partition window. A zero-valued (unset) window is always outside.
func (n *Network) inPartitionWindow(tMs int64) bool {
	return n.cfg.PartitionEndMs > n.cfg.PartitionStartMs && n.cfg.PartitionEndMs > 0 &&
		tMs >= n.cfg.PartitionStartMs && tMs < n.cfg.PartitionEndMs
}

// Connected reports whether a message sent at tMs between src and dst
// would cross a live link. Outside the partition window, or with an empty
// groups list, every pair is connected; inside the window, only pairs in
// the same group are.
func (n *Network) Connected(src, dst int, tMs int64) bool {
	if !n.inPartitionWindow(tMs) {
		return true
	}
	if len(n.cfg.PartitionGroups) == 0 {
		return true
	}
	for _, g := range n.cfg.PartitionGroups {
		inSrc, inDst := false, false
		for _, m := range g {
			if m == src {
				inSrc = true
			}
			if m == dst {
				inDst = true
			}
		}
		if inSrc && inDst {
			return true
		}
	}
	return false
}

// DelayMs computes the deterministic, seeded one-way delay for a message
// from src to dst carrying context, sent at nowMs.
func (n *Network) DelayMs(src, dst int, context []byte, nowMs int64) int64 {
	r := hashx.Int(
		[]byte(n.cfg.Seed), []byte("delay"),
		[]byte{byte(src), byte(dst)}, context, hashx.BE8(nowMs),
	)
	mod := big.NewInt(n.cfg.JitterMs + 1)
	jitter := new(big.Int).Mod(r, mod)
	return n.cfg.BaseDelayMs + jitter.Int64()
}
