package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"market-sim-go/infrastructure/logger"
)

// Factory 为第 id 个 agent 构造 Runner。
type Factory func(id int) (*Runner, error)

// PoolConfig 描述 agent 池的规模与错峰启动策略。
type PoolConfig struct {
	Size            int
	StartJitterMean float64       // 每次启动前休眠 Poisson(StartJitterMean) 个时间单位
	TimeUnit        time.Duration // 默认 1s
}

// Pool 监督一组互相独立的 agent：错峰启动，统一取消，单个 agent 失败不影响其他 agent。
type Pool struct {
	cfg     PoolConfig
	factory Factory
	rand    Random
	logger  *logger.Logger

	mu      sync.Mutex
	errs    map[int]error
	running int
	started int
	onStart func(id int)
	onExit  func(id int, err error)

	wg     sync.WaitGroup
	cancel context.CancelFunc
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewPool 创建 agent 池；rand 仅用于启动抖动。
func NewPool(cfg PoolConfig, factory Factory, rnd Random, log *logger.Logger) *Pool {
	if cfg.TimeUnit <= 0 {
		cfg.TimeUnit = time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	if rnd == nil {
		rnd = NewRandom(0)
	}
	return &Pool{
		cfg:     cfg,
		factory: factory,
		rand:    rnd,
		logger:  log,
		errs:    make(map[int]error),
		sleep:   sleepCtx,
	}
}

// SetStartListener 注册 agent 启动回调。
func (p *Pool) SetStartListener(fn func(id int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStart = fn
}

// SetExitListener 注册已启动 agent 的退出回调（err 为 nil 表示随取消正常退出）。
func (p *Pool) SetExitListener(fn func(id int, err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onExit = fn
}

// Start 在后台依次启动 agent 并立即返回；ctx 或 Stop 取消整个池。
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for id := 0; id < p.cfg.Size; id++ {
			d := time.Duration(p.rand.Poisson(p.cfg.StartJitterMean)) * p.cfg.TimeUnit
			if err := p.sleep(ctx, d); err != nil {
				return
			}
			r, err := p.factory(id)
			if err != nil {
				err = fmt.Errorf("build agent %d: %w", id, err)
				p.mu.Lock()
				p.errs[id] = err
				p.mu.Unlock()
				p.logger.LogError(err, zap.Int("agent", id), zap.String("action", "agent_build"))
				continue
			}
			p.mu.Lock()
			p.running++
			p.started++
			onStart := p.onStart
			p.mu.Unlock()
			if onStart != nil {
				onStart(id)
			}
			p.wg.Add(1)
			go p.runAgent(ctx, id, r)
		}
		p.logger.LogAgent("pool_launched", zap.Int("size", p.cfg.Size))
	}()
}

func (p *Pool) runAgent(ctx context.Context, id int, r *Runner) {
	defer p.wg.Done()
	var err error
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("agent %d panic: %v", id, rec)
		}
		p.mu.Lock()
		p.running--
		p.mu.Unlock()
		p.finish(id, err)
	}()
	p.logger.LogAgent("agent_started", zap.Int("agent", id))
	err = r.Run(ctx)
}

func (p *Pool) finish(id int, err error) {
	p.mu.Lock()
	if err != nil {
		p.errs[id] = err
	}
	fn := p.onExit
	p.mu.Unlock()
	if err != nil {
		p.logger.LogError(err, zap.Int("agent", id), zap.String("action", "agent_exit"))
	} else {
		p.logger.LogAgent("agent_stopped", zap.Int("agent", id))
	}
	if fn != nil {
		fn(id, err)
	}
}

// Stop 取消所有 agent 并等待退出。
func (p *Pool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// Wait 阻塞直到启动循环与所有 agent 都已退出。
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Run 启动并等待，返回失败 agent 数量。
func (p *Pool) Run(ctx context.Context) int {
	p.Start(ctx)
	p.Wait()
	return len(p.Errors())
}

// Running 返回当前存活的 agent 数。
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Started 返回已启动过的 agent 数。
func (p *Pool) Started() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Errors 返回致命错误的快照，按 agent id 可查。
func (p *Pool) Errors() map[int]error {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[int]error, len(p.errs))
	for id, err := range p.errs {
		out[id] = err
	}
	return out
}

// FailedIDs 返回失败 agent 的有序 id 列表。
func (p *Pool) FailedIDs() []int {
	errs := p.Errors()
	ids := make([]int, 0, len(errs))
	for id := range errs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
