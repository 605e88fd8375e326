package replay

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-sim-go/market"
)

func TestRendererWritesNumberedPNG(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	r, err := NewRenderer(RenderConfig{OutputDir: dir, Spec: DefaultHistogramSpec(), Width: 320, Height: 240})
	require.NoError(t, err)

	snap := market.Snapshot{
		Time: 1.5,
		Bids: []market.Level{{Price: 99.5, Quantity: 3}, {Price: 98, Quantity: 10}},
		Asks: []market.Level{{Price: 101, Quantity: 4}},
	}
	path, err := r.Render(7, snap)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "0007.png"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 240, cfg.Height)
}

func TestRendererEmptySnapshot(t *testing.T) {
	r, err := NewRenderer(RenderConfig{OutputDir: t.TempDir(), Spec: DefaultHistogramSpec()})
	require.NoError(t, err)
	path, err := r.Render(0, market.Snapshot{})
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	// 未指定尺寸时为 640x480 像素
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 480, cfg.Height)
}

func TestNewRendererRejectsBadSpec(t *testing.T) {
	_, err := NewRenderer(RenderConfig{OutputDir: t.TempDir(), Spec: HistogramSpec{Bins: 0, Min: 80, Max: 120, YMax: 1}})
	assert.Error(t, err)
	_, err = NewRenderer(RenderConfig{Spec: DefaultHistogramSpec()})
	assert.Error(t, err)
}
