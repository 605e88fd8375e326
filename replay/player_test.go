package replay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-sim-go/market"
)

type captureRenderer struct {
	mu    sync.Mutex
	idx   []int
	times []float64
	fail  error
}

func (c *captureRenderer) Render(index int, snap market.Snapshot) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return "", c.fail
	}
	c.idx = append(c.idx, index)
	c.times = append(c.times, snap.Time)
	return "", nil
}

func (c *captureRenderer) indices() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.idx...)
}

type countRecorder struct{ n int }

func (c *countRecorder) RecordSnapshotRendered() { c.n++ }

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "output.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPlayerRun(t *testing.T) {
	path := writeLog(t, twoRecordLog)
	rend := &captureRenderer{}
	rec := &countRecorder{}
	p := NewPlayer(rend, nil)
	p.Recorder = rec

	n, err := p.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{0, 1}, rend.indices())
	assert.Equal(t, []float64{1.25, 2.5}, rend.times)
	assert.Equal(t, 2, rec.n)
	assert.Equal(t, 2, p.Rendered())
}

func TestPlayerRunStopsOnFormatError(t *testing.T) {
	path := writeLog(t, "INCOMING\n===\n1\nINCOMING\nBIDS\nlen: 1\nSome(xx), \t 1\n")
	rend := &captureRenderer{}
	n, err := NewPlayer(rend, nil).Run(context.Background(), path)
	require.Error(t, err)
	assert.True(t, IsFormat(err))
	assert.Equal(t, 1, n)
}

func TestPlayerRunRejectsNonFinitePrice(t *testing.T) {
	path := writeLog(t, "INCOMING\nBIDS\nlen: 1\nSome(NaN), \t 2\nASKS\nlen: 0\n\n===\n1\n")
	r, err := NewRenderer(RenderConfig{OutputDir: t.TempDir(), Spec: DefaultHistogramSpec()})
	require.NoError(t, err)

	n, err := NewPlayer(r, nil).Run(context.Background(), path)
	require.Error(t, err)
	assert.True(t, IsFormat(err))
	assert.Zero(t, n)
}

func TestPlayerRunErrors(t *testing.T) {
	_, err := NewPlayer(&captureRenderer{}, nil).Run(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	boom := errors.New("disk full")
	_, err = NewPlayer(&captureRenderer{fail: boom}, nil).Run(context.Background(), writeLog(t, twoRecordLog))
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewPlayer(&captureRenderer{}, nil).Run(ctx, writeLog(t, twoRecordLog))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlayerFollow(t *testing.T) {
	path := writeLog(t, "INCOMING\n===\n1\nINCOMING\n===\n")
	rend := &captureRenderer{}
	p := NewPlayer(rend, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Follow(ctx, path) }()

	require.Eventually(t, func() bool { return p.Rendered() == 1 }, 5*time.Second, 10*time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("2\nINCOMING\nASKS\nlen: 1\nSome(100.00), \t 1\n\n===\n3\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return p.Rendered() == 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("follow did not stop")
	}
	// 停止时补渲染最后一条记录
	assert.Equal(t, []int{0, 1, 2}, rend.indices())
	assert.Equal(t, []float64{1, 2, 3}, rend.times)
}
