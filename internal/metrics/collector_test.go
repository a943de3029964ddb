package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpDBSearch, 10*time.Millisecond)
	c.RecordTiming(OpDBSearch, 30*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.DBSearch)
	assert.Equal(t, int64(2), snap.DBSearch.Count)
	assert.Equal(t, int64(40), snap.DBSearch.TotalTimeMs)
	assert.Equal(t, int64(10), snap.DBSearch.MinTimeMs)
	assert.Equal(t, int64(30), snap.DBSearch.MaxTimeMs)
	assert.InDelta(t, 20.0, snap.DBSearch.AvgTimeMs, 0.001)
	assert.Nil(t, snap.DBSearch.TotalInputTokens)
}

func TestRecordLLMUsage(t *testing.T) {
	c := NewCollector()

	c.RecordLLMUsage(OpLLMStream, 100*time.Millisecond, 200, 50)
	c.RecordLLMUsage(OpLLMStream, 300*time.Millisecond, 400, 150)

	snap := c.Snapshot()
	require.NotNil(t, snap.LLMStream)
	assert.Equal(t, int64(2), snap.LLMStream.Count)
	require.NotNil(t, snap.LLMStream.TotalInputTokens)
	assert.Equal(t, int64(600), *snap.LLMStream.TotalInputTokens)
	assert.Equal(t, int64(200), *snap.LLMStream.TotalOutputTokens)
	assert.Equal(t, int64(200), *snap.LLMStream.MinInputTokens)
	assert.Equal(t, int64(400), *snap.LLMStream.MaxInputTokens)
	assert.InDelta(t, 100.0, *snap.LLMStream.AvgOutputTokens, 0.001)
}

func TestSnapshotEmptyOps(t *testing.T) {
	c := NewCollector()

	snap := c.Snapshot()
	assert.Nil(t, snap.Embedding)
	assert.Nil(t, snap.GuardCheck)
	assert.Nil(t, snap.ToolCall)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
}
