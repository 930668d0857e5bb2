// Package node implements the per-node consensus engine: the block DAG,
// fork choice, k-deep finality with conflict detection, the balance/nonce
// state machine, the mempool, and both block-production algorithms (pure
// PoW grinding and leader-weighted hybrid grinding).
//
// Grounded line-for-line on original_source/node.py, the Python source
// spec.md itself distills from; the surrounding control-flow idiom (a
// per-node struct with methods that schedule further events into a shared
// queue, an emit-style log helper) follows LarryRuane-minesim's
// miner/startMining/relay pattern, generalized from "one mining event per
// block" to the PoW-grind-vs-hybrid-leader-grind split spec.md §4.5 needs.
package node

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"github.com/haphan2706/consensus-simnet/internal/chain"
	"github.com/haphan2706/consensus-simnet/internal/config"
	"github.com/haphan2706/consensus-simnet/internal/event"
	"github.com/haphan2706/consensus-simnet/internal/hashx"
	"github.com/haphan2706/consensus-simnet/internal/logging"
	"github.com/haphan2706/consensus-simnet/internal/network"
)

const (
	tickIntervalMs = 100
	workIntervalMs = 1
	slotLenMs      = 100
	maxTxsPerBlock = 5

	powAttempts          = 300
	hybridLeaderAttempts = 260
	hybridFollowerAtt    = 12
)

// Node is one participant's local view of the network: its own copy of the
// block DAG, mempool, and shadow state machine. Nothing is shared across
// nodes; blocks crossing node boundaries travel by value.
type Node struct {
	ID  int
	cfg config.Config
	net *network.Network
	log *logging.Sink

	blocks   map[string]chain.Block
	children map[string][]string
	bestHead string

	mempool []chain.Tx
	nonce   map[int]int64
	balance map[int]int64
	stake   map[int]int64

	finalHeight   int64
	finalBlockByH map[int64]string

	powEpoch    int64
	hybridEpoch int64
	nonceSalt   int64
}

// New constructs a node, attaches its genesis block (identical across all
// nodes since it derives only from the config seed), and self-schedules
// from t=0 its first tick (firing at t=100) and first work event (firing
// at t=1).
func New(id int, cfg config.Config, net *network.Network, log *logging.Sink) *Node {
	ghash := hashx.Hex([]byte(cfg.Seed), []byte("genesis"))
	genesis := chain.Block{
		Parent:     "",
		Height:     0,
		Proposer:   -1,
		Algo:       chain.AlgoGenesis,
		Difficulty: 1,
		StakeEpoch: 0,
		RndTag:     "",
		Nonce:      0,
		Txs:        nil,
		Bhash:      ghash,
		Work:       1,
	}

	n := &Node{
		ID:            id,
		cfg:           cfg,
		net:           net,
		log:           log,
		blocks:        map[string]chain.Block{ghash: genesis},
		children:      map[string][]string{ghash: {}},
		bestHead:      ghash,
		nonce:         map[int]int64{},
		balance:       map[int]int64{},
		stake:         map[int]int64{},
		finalBlockByH: map[int64]string{0: ghash},
		nonceSalt:     1000003 * int64(1+id),
	}
	for i := 0; i < cfg.NNodes; i++ {
		n.nonce[i] = 0
		n.balance[i] = cfg.InitBalance
		n.stake[i] = cfg.InitBalance
	}

	n.ScheduleTick(0)
	n.ScheduleWork(0)
	return n
}

// BestHead returns the node's current fork-choice tip.
func (n *Node) BestHead() string { return n.bestHead }

// BestHeadBlock returns the block at the current tip.
func (n *Node) BestHeadBlock() chain.Block { return n.blocks[n.bestHead] }

// FinalHeight returns the highest fully-finalized height.
func (n *Node) FinalHeight() int64 { return n.finalHeight }

// FinalBlockByHeight returns the bhash finalized at h, and whether one has
// been recorded yet.
func (n *Node) FinalBlockByHeight(h int64) (string, bool) {
	bh, ok := n.finalBlockByH[h]
	return bh, ok
}

// Block looks up an attached block by its id.
func (n *Node) Block(bhash string) (chain.Block, bool) {
	b, ok := n.blocks[bhash]
	return b, ok
}

func (n *Node) emit(evtype string, fields ...logging.Field) {
	all := make([]logging.Field, 0, len(fields)+3)
	all = append(all, logging.F("t", n.net.TimeMs), logging.F("node", n.ID), logging.F("type", evtype))
	all = append(all, fields...)
	n.log.Emit(all...)
}

// headWorkHeight walks bhash back to genesis, summing chain weight and
// returning the tip's own height.
func (n *Node) headWorkHeight(bhash string) (weight int64, height int64) {
	cur := bhash
	for cur != "" {
		b := n.blocks[cur]
		weight += b.Work
		height = b.Height
		cur = b.Parent
	}
	return weight, height
}

// bhashInt parses a hex bhash as an unsigned integer, for the fork-choice
// tiebreak (spec.md §4.4: compared as a 256-bit unsigned integer, not
// lexicographically, though for fixed-width hex the two coincide).
func bhashInt(bhash string) *big.Int {
	b, err := hex.DecodeString(bhash)
	if err != nil {
		// Malformed bhash can only come from a corrupted wire payload;
		// treat it as maximal so it never wins a tiebreak.
		return hashx.TwoPow256()
	}
	return new(big.Int).SetBytes(b)
}

// better implements spec.md §4.4's total order: greater weight wins, ties
// broken by greater height, further ties broken by smaller bhash.
func (n *Node) better(a, b string) bool {
	wa, ha := n.headWorkHeight(a)
	wb, hb := n.headWorkHeight(b)
	if wa != wb {
		return wa > wb
	}
	if ha != hb {
		return ha > hb
	}
	return bhashInt(a).Cmp(bhashInt(b)) < 0
}

// AttachBlock adds blk to the block DAG if its parent is already attached
// and it is not a duplicate, updates the fork-choice head on reorg, and
// recomputes finality. Orphans (unknown parent) and duplicates are
// silently dropped per spec.md §9 — this is deliberate, not a bug: no
// orphan pool or re-request mechanism exists.
func (n *Node) AttachBlock(blk chain.Block) error {
	if _, dup := n.blocks[blk.Bhash]; dup {
		return nil
	}
	if _, known := n.blocks[blk.Parent]; !known {
		return nil
	}
	n.blocks[blk.Bhash] = blk
	n.children[blk.Parent] = append(n.children[blk.Parent], blk.Bhash)
	if _, ok := n.children[blk.Bhash]; !ok {
		n.children[blk.Bhash] = nil
	}

	if n.better(blk.Bhash, n.bestHead) {
		old := n.bestHead
		n.bestHead = blk.Bhash
		n.emit("reorg", logging.F("old_head", old), logging.F("new_head", n.bestHead))
	}

	return n.updateFinality()
}

// updateFinality walks the current best chain back to genesis and
// advances finalHeight as far as k-deep finality allows, raising a
// *FatalInvariantError if a height would finalize to a different block
// than one already recorded (spec.md I3/P1).
func (n *Node) updateFinality() error {
	k := int64(n.cfg.KFinal)
	var chainIDs []string
	cur := n.bestHead
	for cur != "" {
		chainIDs = append(chainIDs, cur)
		cur = n.blocks[cur].Parent
	}
	for i, j := 0, len(chainIDs)-1; i < j; i, j = i+1, j-1 {
		chainIDs[i], chainIDs[j] = chainIDs[j], chainIDs[i]
	}
	if len(chainIDs) == 0 {
		return nil
	}

	finalIdx := int64(len(chainIDs)-1) - k
	if finalIdx <= 0 {
		return nil
	}

	for i := n.finalHeight + 1; i <= finalIdx; i++ {
		bh := chainIDs[i]
		if existing, ok := n.finalBlockByH[i]; ok && existing != bh {
			return &FatalInvariantError{
				Node: n.ID,
				Kind: "finality_conflict",
				Msg:  "height " + itoa(i) + ": already finalized " + existing + ", now " + bh,
			}
		}
		n.finalBlockByH[i] = bh
		n.finalHeight = i
		n.emit("finalize", logging.F("height", i), logging.F("bhash", bh))
	}
	return n.replayFinalizedPrefix()
}

// replayFinalizedPrefix re-derives balances/nonces from scratch over the
// entire finalized prefix (spec.md §4.6), the authoritative safety check:
// a reorg never rolls back the optimistic balance/nonce maps, so only this
// replay gates safety (spec.md §9).
func (n *Node) replayFinalizedPrefix() error {
	bal := make(map[int]int64, n.cfg.NNodes)
	nce := make(map[int]int64, n.cfg.NNodes)
	for i := 0; i < n.cfg.NNodes; i++ {
		bal[i] = n.cfg.InitBalance
		nce[i] = 0
	}
	for h := int64(1); h <= n.finalHeight; h++ {
		bh := n.finalBlockByH[h]
		blk := n.blocks[bh]
		for _, tx := range blk.Txs {
			if tx.Nonce != nce[tx.From] {
				return &FatalInvariantError{
					Node: n.ID,
					Kind: "nonce_mismatch",
					Msg:  "height " + itoa(h) + " tid " + tx.Tid,
				}
			}
			if bal[tx.From] < tx.Amount {
				return &FatalInvariantError{
					Node: n.ID,
					Kind: "negative_balance",
					Msg:  "height " + itoa(h) + " tid " + tx.Tid,
				}
			}
			bal[tx.From] -= tx.Amount
			bal[tx.To] += tx.Amount
			nce[tx.From]++
		}
	}
	return nil
}

// ScheduleTick pushes this node's next tick event.
func (n *Node) ScheduleTick(nowMs int64) {
	n.net.Evt.Push(nowMs+tickIntervalMs, event.Tick, n.ID, nil)
}

// OnTick draws the per-node transaction-creation coin flip (spec.md
// §4.7 "Tick") and reschedules itself.
func (n *Node) OnTick(nowMs int64) {
	r := hashx.Int([]byte(n.cfg.Seed), []byte("tick"), []byte{byte(n.ID)}, hashx.BE8(nowMs))
	pNum := probabilityThreshold(n.cfg.TxRatePerNodePerS)
	if r.Cmp(pNum) < 0 {
		nMinus1 := big.NewInt(int64(n.cfg.NNodes - 1))
		mod := new(big.Int).Mod(r, nMinus1).Int64()
		to := (n.ID + 1 + int(mod)) % n.cfg.NNodes
		amount := 1 + new(big.Int).Mod(r, big.NewInt(5)).Int64()
		nc := n.nonce[n.ID]
		tid := hashx.Hex([]byte(n.cfg.Seed), []byte("tx"), []byte{byte(n.ID)}, hashx.BE8(nowMs))
		tx := chain.Tx{From: n.ID, To: to, Amount: amount, Nonce: nc, Tid: tid}
		n.mempool = append(n.mempool, tx)
		n.nonce[n.ID]++
		n.emit("tx_new", logging.F("tid", tid), logging.F("to", to),
			logging.F("amount", amount), logging.F("nonce", nc))
	}
	n.ScheduleTick(nowMs)
}

// probabilityThreshold computes rate * 2**256 / 10 with exact integer
// arithmetic (spec.md §9: this must never be floating point). rate is
// scaled by 10 and truncated to an integer (the config default is 2.0), so
// the result is exact for a rate with at most one decimal digit; any
// further digits are dropped.
func probabilityThreshold(rate float64) *big.Int {
	scaled := int64(rate * 10)
	num := new(big.Int).Mul(hashx.TwoPow256(), big.NewInt(scaled))
	return num.Div(num, big.NewInt(100))
}

// ScheduleWork pushes this node's next work event.
func (n *Node) ScheduleWork(nowMs int64) {
	n.net.Evt.Push(nowMs+workIntervalMs, event.Work, n.ID, nil)
}

// LeaderForHeight draws the hybrid slot leader for (height, slot): a
// stake-weighted walk over node indices in order, first cumulative bucket
// to strictly exceed the draw wins. Zero total stake always elects node 0.
func (n *Node) LeaderForHeight(height, slot int64) int {
	var total int64
	for i := 0; i < n.cfg.NNodes; i++ {
		total += n.stake[i]
	}
	if total <= 0 {
		return 0
	}
	r := hashx.Int([]byte(n.cfg.Seed), []byte("leader"), hashx.BE8(height), hashx.BE4(slot))
	pick := new(big.Int).Mod(r, big.NewInt(total))
	var acc int64
	for i := 0; i < n.cfg.NNodes; i++ {
		acc += n.stake[i]
		if pick.Cmp(big.NewInt(acc)) < 0 {
			return i
		}
	}
	return n.cfg.NNodes - 1
}

// makeBlockCandidate selects up to maxTxsPerBlock mempool transactions
// that validate against a simulated copy of the local balance/nonce state
// (spec.md §4.5 step 2), in mempool order.
func (n *Node) makeBlockCandidate(algo chain.Algo, height int64) (header []byte, txs []chain.Tx, parent string) {
	parent = n.bestHead
	bal := make(map[int]int64, len(n.balance))
	for k, v := range n.balance {
		bal[k] = v
	}
	nce := make(map[int]int64, len(n.nonce))
	for k, v := range n.nonce {
		nce[k] = v
	}
	for _, tx := range n.mempool {
		if len(txs) >= maxTxsPerBlock {
			break
		}
		if tx.From == n.ID && tx.Nonce != nce[n.ID] {
			continue
		}
		if bal[tx.From] >= tx.Amount {
			bal[tx.From] -= tx.Amount
			bal[tx.To] += tx.Amount
			nce[tx.From]++
			txs = append(txs, tx)
		}
	}
	header = chain.Header(parent, height, n.ID, algo)
	return header, txs, parent
}

// tryHash checks whether header||be8(nonce) hashes under the difficulty
// target for D, returning the resulting bhash and the block's work
// contribution regardless of success.
func tryHash(header []byte, nonce int64, d int64) (ok bool, bhash string, work int64) {
	if d < 1 {
		d = 1
	}
	target := new(big.Int).Div(hashx.TwoPow256(), big.NewInt(d))
	bh := hashx.Hex(header, hashx.BE8(nonce))
	hval := hashx.Int(header, hashx.BE8(nonce))
	ok = hval.Cmp(target) < 0
	work = (int64(1) << 32) / d
	return ok, bh, work
}

// OnWork runs one grinding attempt window for the configured algorithm,
// broadcasts and locally applies the block on success, then reschedules
// itself one ms later (spec.md §4.5).
func (n *Node) OnWork(nowMs int64) error {
	head := n.blocks[n.bestHead]
	height := head.Height + 1

	switch n.cfg.Algo {
	case "pow":
		if err := n.grindAndApply(chain.AlgoPow, height, nowMs, n.cfg.PowD, powAttempts, n.powEpoch, 0, ""); err != nil {
			return err
		}
		n.powEpoch++
	case "hybrid":
		slot := nowMs / slotLenMs
		leader := n.LeaderForHeight(height, slot)
		attempts := int64(hybridFollowerAtt)
		if n.ID == leader {
			attempts = hybridLeaderAttempts
		}
		if err := n.grindAndApply(chain.AlgoHybrid, height, nowMs, n.cfg.HybridD, attempts, n.hybridEpoch, slot, "s"+itoa(slot)); err != nil {
			return err
		}
		n.hybridEpoch++
	}

	n.ScheduleWork(nowMs)
	return nil
}

// grindAndApply is shared by the pow and hybrid branches of OnWork: build
// a candidate, search the nonces epoch*attempts+salt+i for i in
// [0, attempts), and on success broadcast and apply the block. With a fixed
// attempts (pow) successive epochs search non-overlapping windows; hybrid
// mixes window sizes of 260 and 12 under one epoch counter, so its windows
// can overlap.
func (n *Node) grindAndApply(algo chain.Algo, height, nowMs, d, attempts, epoch, stakeEpoch int64, rndTag string) error {
	header, txs, parent := n.makeBlockCandidate(algo, height)
	base := epoch*attempts + n.nonceSalt
	for i := int64(0); i < attempts; i++ {
		nonce := base + i
		ok, bh, work := tryHash(header, nonce, d)
		if !ok {
			continue
		}
		blk := chain.Block{
			Parent: parent, Height: height, Proposer: n.ID, Algo: algo,
			Difficulty: d, StakeEpoch: stakeEpoch, RndTag: rndTag, Nonce: nonce,
			Txs: txs, Bhash: bh, Work: work,
		}
		n.broadcastBlock(blk, nowMs)
		return n.applyLocalBlock(blk)
	}
	return nil
}

// broadcastBlock pushes a recv_block event to every connected peer,
// carrying a value copy of the block, and emits the mining record.
func (n *Node) broadcastBlock(blk chain.Block, nowMs int64) {
	for dst := 0; dst < n.cfg.NNodes; dst++ {
		if dst == n.ID {
			continue
		}
		if !n.net.Connected(n.ID, dst, nowMs) {
			continue
		}
		d := n.net.DelayMs(n.ID, dst, []byte(blk.Bhash), nowMs)
		n.net.Evt.Push(nowMs+d, event.RecvBlock, dst, &event.RecvBlockPayload{
			Src: n.ID, Dst: dst, Blk: blk,
		})
	}
	evtype := "block_mined"
	if blk.Algo == chain.AlgoHybrid {
		evtype = "block_proposed"
	}
	n.emit(evtype, logging.F("height", blk.Height), logging.F("bhash", blk.Bhash), logging.F("leader", n.ID))
}

// applyLocalBlock attaches a locally-mined block, purges its
// transactions from the mempool, and optimistically updates the local
// balance/nonce shadow state (spec.md §9: a reorg never rolls this back;
// only the finalized replay is authoritative for safety).
func (n *Node) applyLocalBlock(blk chain.Block) error {
	if err := n.AttachBlock(blk); err != nil {
		return err
	}
	if len(blk.Txs) > 0 {
		tids := make(map[string]bool, len(blk.Txs))
		for _, tx := range blk.Txs {
			tids[tx.Tid] = true
		}
		kept := n.mempool[:0]
		for _, tx := range n.mempool {
			if !tids[tx.Tid] {
				kept = append(kept, tx)
			}
		}
		n.mempool = kept
	}
	for _, tx := range blk.Txs {
		if n.balance[tx.From] >= tx.Amount {
			n.balance[tx.From] -= tx.Amount
			n.balance[tx.To] += tx.Amount
		}
	}
	for _, tx := range blk.Txs {
		if n.nonce[tx.From] <= tx.Nonce {
			n.nonce[tx.From] = tx.Nonce + 1
		}
	}
	return nil
}

// OnRecvBlock re-validates a block received from a peer (recomputed
// header, recomputed bhash, difficulty re-check) before attaching it;
// blocks that fail either check are silently dropped (spec.md §4.7, §7).
func (n *Node) OnRecvBlock(nowMs int64, blk chain.Block) error {
	header := chain.Header(blk.Parent, blk.Height, blk.Proposer, blk.Algo)
	d := n.targetDifficultyFor(blk.Algo)
	ok, bh, _ := tryHash(header, blk.Nonce, d)
	if !ok || bh != blk.Bhash {
		return nil
	}
	return n.AttachBlock(blk)
}

func (n *Node) targetDifficultyFor(algo chain.Algo) int64 {
	switch algo {
	case chain.AlgoPow:
		return n.cfg.PowD
	case chain.AlgoHybrid:
		return n.cfg.HybridD
	default:
		return 1
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
