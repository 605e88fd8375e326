package replay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"market-sim-go/market"
)

// scanComplete 只处理以换行结尾的完整行且不调用 Close：
// 仅输出已被下一个 INCOMING 终结的记录，正在写入的尾部留待下次。
func scanComplete(r io.Reader, fn func(market.Snapshot) error) error {
	p := NewParser(fn)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if ferr := p.Feed(line); ferr != nil {
			return ferr
		}
	}
}

// Follow 渲染 path 中已有的快照，然后监听文件写入，增量渲染新出现的快照。
// ctx 取消后做最后一次完整解析（含末尾记录）并返回。
func (p *Player) Follow(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	// 监听目录，文件被替换或稍后才创建时也能收到事件
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	p.next.Store(0)
	if err := p.followPass(ctx, abs); err != nil {
		return err
	}
	p.Logger.Info("replay_follow_started", zap.String("file", abs), zap.Int("rendered", p.Rendered()))

	for {
		select {
		case <-ctx.Done():
			return p.finalPass(ctx, abs)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Create) {
				// 新文件从序号 0 重新开始
				p.next.Store(0)
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				if err := p.followPass(ctx, abs); err != nil {
					return err
				}
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.Logger.LogError(werr, zap.String("action", "replay_watch"), zap.String("file", abs))
		}
	}
}

func (p *Player) followPass(ctx context.Context, path string) error {
	_, err := p.catchUp(ctx, path, scanComplete)
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Player) finalPass(ctx context.Context, path string) error {
	_, err := p.catchUp(context.WithoutCancel(ctx), path, Scan)
	switch {
	case err == nil, errors.Is(err, os.ErrNotExist):
		return nil
	case IsFormat(err):
		// 停止时文件尾部可能仍在写入
		p.Logger.Warn("replay_tail_incomplete", zap.String("file", path), zap.Error(err))
		return nil
	default:
		return err
	}
}
