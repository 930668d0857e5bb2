package node

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haphan2706/consensus-simnet/internal/chain"
	"github.com/haphan2706/consensus-simnet/internal/config"
	"github.com/haphan2706/consensus-simnet/internal/logging"
	"github.com/haphan2706/consensus-simnet/internal/network"
)

func newTestNode(t *testing.T, id int, cfg config.Config, net *network.Network) *Node {
	t.Helper()
	sink, err := logging.Open(filepath.Join(t.TempDir(), "log.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	return New(id, cfg, net, sink)
}

func TestGenesisIsIdenticalAcrossNodesWithSameSeed(t *testing.T) {
	cfg := config.Defaults()
	cfg.NNodes = 2
	net := network.New(cfg)
	a := newTestNode(t, 0, cfg, net)
	b := newTestNode(t, 1, cfg, net)
	assert.Equal(t, a.BestHead(), b.BestHead(), "genesis bhash derives only from the seed")
}

func TestAttachBlockDropsOrphanAndDuplicate(t *testing.T) {
	cfg := config.Defaults()
	cfg.NNodes = 2
	net := network.New(cfg)
	n := newTestNode(t, 0, cfg, net)

	orphan := chain.Block{Parent: "does-not-exist", Height: 1, Proposer: 0, Algo: chain.AlgoPow, Difficulty: 1, Bhash: "orphanhash", Work: 1}
	require.NoError(t, n.AttachBlock(orphan))
	_, ok := n.Block("orphanhash")
	assert.False(t, ok, "a block whose parent is unknown must be silently dropped")

	genesis := n.BestHead()
	header := chain.Header(genesis, 1, 0, chain.AlgoPow)
	var found chain.Block
	for nonce := int64(0); nonce < 100000; nonce++ {
		ok, bh, work := tryHash(header, nonce, 4)
		if ok {
			found = chain.Block{Parent: genesis, Height: 1, Proposer: 0, Algo: chain.AlgoPow, Difficulty: 4, Nonce: nonce, Bhash: bh, Work: work}
			break
		}
	}
	require.NotEmpty(t, found.Bhash, "difficulty 4 should be trivial to satisfy within 100000 attempts")

	require.NoError(t, n.AttachBlock(found))
	_, ok = n.Block(found.Bhash)
	assert.True(t, ok)
	assert.Equal(t, found.Bhash, n.BestHead())

	// Re-attaching the same block must be a silent no-op, not an error
	// and not a duplicate child entry.
	require.NoError(t, n.AttachBlock(found))
	assert.Equal(t, found.Bhash, n.BestHead())
}

func TestBetterPrefersGreaterWeightThenHeightThenSmallerHash(t *testing.T) {
	cfg := config.Defaults()
	cfg.NNodes = 1
	net := network.New(cfg)
	n := newTestNode(t, 0, cfg, net)

	g := n.BestHead()
	n.blocks["heavy"] = chain.Block{Parent: g, Height: 1, Bhash: "heavy", Work: 100}
	n.children["heavy"] = nil
	n.blocks["light"] = chain.Block{Parent: g, Height: 1, Bhash: "light", Work: 1}
	n.children["light"] = nil

	assert.True(t, n.better("heavy", "light"))
	assert.False(t, n.better("light", "heavy"))

	// Equal weight (11 each): the greater height wins.
	n.blocks["short"] = chain.Block{Parent: g, Height: 1, Bhash: "short", Work: 10}
	n.blocks["mid"] = chain.Block{Parent: g, Height: 1, Bhash: "mid", Work: 5}
	n.blocks["tall"] = chain.Block{Parent: "mid", Height: 2, Bhash: "tall", Work: 5}
	assert.True(t, n.better("tall", "short"))
	assert.False(t, n.better("short", "tall"))

	// Equal weight and height: the smaller bhash, read as an integer, wins.
	n.blocks["0a"] = chain.Block{Parent: g, Height: 1, Bhash: "0a", Work: 7}
	n.blocks["0b"] = chain.Block{Parent: g, Height: 1, Bhash: "0b", Work: 7}
	assert.True(t, n.better("0a", "0b"))
	assert.False(t, n.better("0b", "0a"))
}

func TestLeaderForHeightZeroStakeReturnsZero(t *testing.T) {
	cfg := config.Defaults()
	cfg.NNodes = 5
	cfg.InitBalance = 0
	net := network.New(cfg)
	n := newTestNode(t, 0, cfg, net)

	for h := int64(0); h < 20; h++ {
		assert.Equal(t, 0, n.LeaderForHeight(h, h%5))
	}
}

func TestFinalityConflictIsFatal(t *testing.T) {
	cfg := config.Defaults()
	cfg.NNodes = 1
	cfg.KFinal = 0
	net := network.New(cfg)
	n := newTestNode(t, 0, cfg, net)

	g := n.BestHead()
	n.finalBlockByH[1] = "already-final"
	competitor := chain.Block{Parent: g, Height: 1, Bhash: "competitor", Work: 5}

	err := n.AttachBlock(competitor)
	require.Error(t, err)
	var fatal *FatalInvariantError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "finality_conflict", fatal.Kind)
}

func TestReplayDetectsNonceMismatch(t *testing.T) {
	cfg := config.Defaults()
	cfg.NNodes = 2
	cfg.KFinal = 0
	net := network.New(cfg)
	n := newTestNode(t, 0, cfg, net)

	g := n.BestHead()
	badTx := chain.Tx{From: 0, To: 1, Amount: 10, Nonce: 5, Tid: "bad-nonce"}
	blk := chain.Block{Parent: g, Height: 1, Bhash: "withbadtx", Work: 5, Txs: []chain.Tx{badTx}}
	n.finalHeight = 0
	n.blocks[blk.Bhash] = blk
	n.finalBlockByH[1] = blk.Bhash
	n.finalHeight = 1

	err := n.replayFinalizedPrefix()
	require.Error(t, err)
	var fatal *FatalInvariantError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "nonce_mismatch", fatal.Kind)
}

func TestReplayDetectsNegativeBalance(t *testing.T) {
	cfg := config.Defaults()
	cfg.NNodes = 2
	cfg.InitBalance = 5
	net := network.New(cfg)
	n := newTestNode(t, 0, cfg, net)

	g := n.BestHead()
	tooMuch := chain.Tx{From: 0, To: 1, Amount: 1000, Nonce: 0, Tid: "too-much"}
	blk := chain.Block{Parent: g, Height: 1, Bhash: "withbigtx", Work: 5, Txs: []chain.Tx{tooMuch}}
	n.blocks[blk.Bhash] = blk
	n.finalBlockByH[1] = blk.Bhash
	n.finalHeight = 1

	err := n.replayFinalizedPrefix()
	require.Error(t, err)
	var fatal *FatalInvariantError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "negative_balance", fatal.Kind)
}
