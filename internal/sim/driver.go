// Package sim is the simulation driver: it wires the network and nodes,
// pops events in time order, advances the virtual clock, bounds total
// virtual time, and dispatches to node handlers.
//
// Grounded on original_source/main.py's run() loop and
// LarryRuane-minesim's main() pop/dispatch loop — both pop the earliest
// event, advance the clock to its timestamp, and dispatch by kind; the
// teacher's "mining vs peer-relay" two-kind dispatch generalizes here to
// spec.md's tick/work/recv_block three-kind dispatch.
package sim

import (
	"fmt"

	"github.com/haphan2706/consensus-simnet/internal/chain"
	"github.com/haphan2706/consensus-simnet/internal/config"
	"github.com/haphan2706/consensus-simnet/internal/event"
	"github.com/haphan2706/consensus-simnet/internal/logging"
	"github.com/haphan2706/consensus-simnet/internal/network"
	"github.com/haphan2706/consensus-simnet/internal/node"
)

// Driver owns the network and the set of nodes for one simulation run.
type Driver struct {
	cfg   config.Config
	net   *network.Network
	nodes []*node.Node
	log   *logging.Sink
}

// New constructs a driver: a fresh network and cfg.NNodes nodes, each
// self-scheduling from t=0 its first tick (t=100) and work (t=1) event.
func New(cfg config.Config, log *logging.Sink) *Driver {
	net := network.New(cfg)
	nodes := make([]*node.Node, cfg.NNodes)
	for i := range nodes {
		nodes[i] = node.New(i, cfg, net, log)
	}
	return &Driver{cfg: cfg, net: net, nodes: nodes, log: log}
}

// Run pops events in (t_ms, eid) order, advancing the virtual clock to
// each one before dispatch, until the queue drains or the configured
// horizon is exceeded. It returns a *node.FatalInvariantError if any node
// handler raises one, and otherwise emits per-node summary records.
func (d *Driver) Run() error {
	for !d.net.Evt.Empty() {
		ev := d.net.Evt.Pop()
		if ev.TMs > d.cfg.LimitMs {
			break
		}
		d.net.TimeMs = ev.TMs

		var err error
		switch ev.Kind {
		case event.Tick:
			d.nodes[ev.NodeID].OnTick(ev.TMs)
		case event.Work:
			err = d.nodes[ev.NodeID].OnWork(ev.TMs)
		case event.RecvBlock:
			payload := ev.Payload.(*event.RecvBlockPayload)
			if d.net.Connected(payload.Src, payload.Dst, ev.TMs) {
				err = d.nodes[payload.Dst].OnRecvBlock(ev.TMs, payload.Blk.(chain.Block))
			}
		}
		if err != nil {
			return fmt.Errorf("driver: %w", err)
		}
	}

	for _, n := range d.nodes {
		head := n.BestHeadBlock()
		d.log.Emit(
			logging.F("summary", true),
			logging.F("node", n.ID),
			logging.F("algo", d.cfg.Algo),
			logging.F("best_height", head.Height),
			logging.F("final_height", n.FinalHeight()),
			logging.F("best_head", n.BestHead()),
		)
	}
	return nil
}
