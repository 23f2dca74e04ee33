package resource

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(ctx, 60))
	assert.Equal(t, int64(60), c.MemoryUsage())
	assert.False(t, c.TryAcquireMemory(50))

	c.ReleaseMemory(60)
	assert.Equal(t, int64(0), c.MemoryUsage())
	assert.Equal(t, int64(60), c.PeakMemoryUsage())

	assert.True(t, c.TryAcquireMemory(100))
	c.ReleaseMemory(100)
}

func TestMemoryOversizedRequestIsClamped(t *testing.T) {
	ctx := context.Background()
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(ctx, 500))
	assert.Equal(t, int64(500), c.MemoryUsage())
	c.ReleaseMemory(500)
	assert.True(t, c.TryAcquireMemory(100))
}

func TestMemoryBlocksUntilCanceled(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 10})
	require.NoError(t, c.AcquireMemory(context.Background(), 10))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.AcquireMemory(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNilController(t *testing.T) {
	var c *Controller
	ctx := context.Background()

	require.NoError(t, c.AcquireMemory(ctx, 1<<40))
	assert.True(t, c.TryAcquireMemory(1))
	c.ReleaseMemory(1)
	assert.Equal(t, int64(0), c.MemoryUsage())
	require.NoError(t, c.AcquireIO(ctx, 1<<30))
}

func TestIOUnlimited(t *testing.T) {
	c := NewController(Config{})
	require.NoError(t, c.AcquireIO(context.Background(), 1<<30))
}

func TestIOSplitsLargeRequests(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})
	// Within the initial burst, so this returns without waiting.
	require.NoError(t, c.AcquireIO(context.Background(), 1<<20))
}

func TestRateLimitedReaders(t *testing.T) {
	ctx := context.Background()
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	src := strings.NewReader("feature bytes")
	ra := NewRateLimitedReaderAt(ctx, src, c)
	buf := make([]byte, 5)
	n, err := ra.ReadAt(buf, 8)
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(buf[:n]))

	r := NewRateLimitedReader(ctx, strings.NewReader("abc"), c)
	all, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(all))
}
