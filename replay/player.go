package replay

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"go.uber.org/zap"

	"market-sim-go/infrastructure/logger"
	"market-sim-go/market"
)

// SnapshotRenderer 渲染单张快照。
type SnapshotRenderer interface {
	Render(index int, snap market.Snapshot) (string, error)
}

// Recorder 接收回放进度。
type Recorder interface {
	RecordSnapshotRendered()
}

// Player 顺序解析日志并逐条渲染；next 是下一张图片的序号。
type Player struct {
	Renderer SnapshotRenderer
	Logger   *logger.Logger
	Recorder Recorder

	next atomic.Int64
}

// NewPlayer 创建回放器。
func NewPlayer(r SnapshotRenderer, log *logger.Logger) *Player {
	if log == nil {
		log = logger.Nop()
	}
	return &Player{Renderer: r, Logger: log}
}

// Rendered 返回已渲染的快照数。
func (p *Player) Rendered() int { return int(p.next.Load()) }

// Run 解析 path 并从序号 0 开始渲染全部快照，返回渲染数量。
func (p *Player) Run(ctx context.Context, path string) (int, error) {
	p.next.Store(0)
	return p.catchUp(ctx, path, Scan)
}

type scanFunc func(io.Reader, func(market.Snapshot) error) error

// catchUp 重新解析整个文件，只渲染序号 >= next 的快照。
func (p *Player) catchUp(ctx context.Context, path string, scan scanFunc) (int, error) {
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	seen, rendered := 0, 0
	next := int(p.next.Load())
	err = scan(f, func(s market.Snapshot) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx := seen
		seen++
		if idx < next {
			return nil
		}
		out, err := p.Renderer.Render(idx, s)
		if err != nil {
			return err
		}
		next = idx + 1
		p.next.Store(int64(next))
		rendered++
		if p.Recorder != nil {
			p.Recorder.RecordSnapshotRendered()
		}
		bid, ask := s.Best()
		p.Logger.Debug("snapshot_rendered",
			zap.Int("index", idx),
			zap.String("file", out),
			zap.Float64("time", s.Time),
			zap.Float64("best_bid", bid),
			zap.Float64("best_ask", ask),
			zap.Float64("mid", s.Mid()),
			zap.Int("bid_depth", market.Depth(s.Bids)),
			zap.Int("ask_depth", market.Depth(s.Asks)))
		return nil
	})
	if err != nil {
		p.Logger.LogError(err, zap.String("action", "replay"), zap.String("file", path), zap.Int("rendered", rendered))
		return rendered, err
	}
	p.Logger.Info("replay_done", zap.String("file", path), zap.Int("rendered", rendered), zap.Int("total", next))
	return rendered, nil
}
