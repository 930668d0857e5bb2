package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsMatchSpec(t *testing.T) {
	c := Defaults()
	assert.Equal(t, "pow", c.Algo)
	assert.Equal(t, "seed-0", c.Seed)
	assert.Equal(t, 4, c.KFinal)
	assert.Equal(t, int64(12000), c.LimitMs)
	assert.Equal(t, "log.jsonl", c.LogPath)
	assert.Equal(t, 5, c.NNodes)
	assert.Equal(t, int64(40), c.BaseDelayMs)
	assert.Equal(t, int64(60), c.JitterMs)
	assert.Equal(t, int64(1<<18), c.PowD)
	assert.Equal(t, int64(1<<10), c.HybridD)
	assert.Equal(t, 2.0, c.TxRatePerNodePerS)
	assert.Equal(t, int64(1000), c.InitBalance)
	require.NoError(t, c.Validate())
}

func TestApplyDerivedDelayFlag(t *testing.T) {
	c := Defaults()
	c.Delay = true
	c.ApplyDerived()
	assert.Equal(t, int64(60), c.BaseDelayMs)
	assert.Equal(t, int64(80), c.JitterMs)
}

func TestApplyDerivedPartitionFlag(t *testing.T) {
	c := Defaults()
	c.Partition = true
	c.ApplyDerived()
	assert.Equal(t, int64(3000), c.PartitionStartMs)
	assert.Equal(t, int64(6000), c.PartitionEndMs)
	assert.Equal(t, [][]int{{0, 1, 2}, {3, 4}}, c.PartitionGroups)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	c := Defaults()
	c.Algo = "nonsense"
	assert.Error(t, c.Validate())

	c = Defaults()
	c.KFinal = -1
	assert.Error(t, c.Validate())

	c = Defaults()
	c.LimitMs = 0
	assert.Error(t, c.Validate())

	c = Defaults()
	c.NNodes = 0
	assert.Error(t, c.Validate())

	c = Defaults()
	c.PowD = 0
	assert.Error(t, c.Validate())
}
