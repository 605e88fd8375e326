package replay

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"market-sim-go/market"
)

// renderDPI 固定画布分辨率，使 Width/Height 的点数即像素数。
const renderDPI = 72

var (
	askColor = color.NRGBA{R: 31, G: 119, B: 180, A: 128}
	bidColor = color.NRGBA{R: 255, G: 127, B: 14, A: 128}
)

// RenderConfig 输出目录、分箱与图片尺寸（像素）。
type RenderConfig struct {
	OutputDir string
	Spec      HistogramSpec
	Width     int
	Height    int
}

// Renderer 把快照绘制成买卖两侧叠加的直方图 PNG。
type Renderer struct {
	cfg RenderConfig
}

// NewRenderer 校验参数并创建输出目录。
func NewRenderer(cfg RenderConfig) (*Renderer, error) {
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output dir required")
	}
	if err := cfg.Spec.Validate(); err != nil {
		return nil, err
	}
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.Height <= 0 {
		cfg.Height = 480
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Renderer{cfg: cfg}, nil
}

// Path 返回第 index 张图片的路径，序号补零到 4 位。
func (r *Renderer) Path(index int) string {
	return filepath.Join(r.cfg.OutputDir, fmt.Sprintf("%04d.png", index))
}

// Render 绘制一张快照并返回写出的文件路径。
func (r *Renderer) Render(index int, snap market.Snapshot) (string, error) {
	spec := r.cfg.Spec
	p := plot.New()
	p.Title.Text = fmt.Sprintf("t = %g", snap.Time)
	p.X.Label.Text = "price"
	p.Y.Label.Text = "quantity"

	asks := histogram(Bin(Expand(snap.Asks), spec), spec, askColor)
	bids := histogram(Bin(Expand(snap.Bids), spec), spec, bidColor)
	p.Add(asks, bids)
	p.Legend.Add("asks", asks)
	p.Legend.Add("bids", bids)
	p.Legend.Top = true

	p.X.Min, p.X.Max = spec.Min, spec.Max
	p.Y.Min, p.Y.Max = 0, spec.YMax

	path := r.Path(index)
	if err := r.save(p, path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}

func (r *Renderer) save(p *plot.Plot, path string) error {
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Points(float64(r.cfg.Width)), vg.Points(float64(r.cfg.Height))),
		vgimg.UseDPI(renderDPI),
	)
	p.Draw(draw.New(c))

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func histogram(counts []float64, spec HistogramSpec, fill color.Color) *plotter.Histogram {
	width := spec.Width()
	bins := make([]plotter.HistogramBin, len(counts))
	for i, n := range counts {
		lo := spec.Min + float64(i)*width
		bins[i] = plotter.HistogramBin{Min: lo, Max: lo + width, Weight: n}
	}
	return &plotter.Histogram{
		Bins:      bins,
		Width:     width,
		FillColor: fill,
		LineStyle: plotter.DefaultLineStyle,
	}
}
