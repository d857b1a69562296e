// Package scheduler 运行按固定间隔执行的命名任务
//
// 心跳、Gossip 与 GC 都以命名任务的形式挂在同一个 Scheduler 上。
// Enable/Disable 幂等；Disable 在任务 goroutine 退出后才返回，
// 因此不能在任务函数内部禁用自身。
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-filesharer/internal/util/logger"
)

var log = logger.Logger("scheduler")

// TaskFunc 周期任务，ctx 在任务被禁用时取消
type TaskFunc func(ctx context.Context)

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler 周期任务调度器
type Scheduler struct {
	clock clock.Clock

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
}

// New 创建调度器，clk 为 nil 时使用真实时钟
func New(clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		clock: clk,
		tasks: make(map[string]*task),
	}
}

// Clock 调度器使用的时钟
func (s *Scheduler) Clock() clock.Clock {
	return s.clock
}

// Enable 启动命名任务，已启用或调度器已停止时返回 false
func (s *Scheduler) Enable(name string, interval time.Duration, fn TaskFunc) bool {
	if interval <= 0 || fn == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if _, ok := s.tasks[name]; ok {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	s.tasks[name] = t

	// ticker 在返回前创建，调用方推进模拟时钟时不会漏掉第一次触发
	ticker := s.clock.Ticker(interval)
	go s.run(ctx, name, ticker, fn, t.done)

	log.Debug("周期任务已启用", "task", name, "interval", interval)
	return true
}

func (s *Scheduler) run(ctx context.Context, name string, ticker *clock.Ticker, fn TaskFunc, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.invoke(ctx, name, fn)
		}
	}
}

func (s *Scheduler) invoke(ctx context.Context, name string, fn TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("周期任务 panic", "task", name, "panic", r)
		}
	}()
	fn(ctx)
}

// Disable 停止命名任务并等待其退出，任务不存在时返回 false
func (s *Scheduler) Disable(name string) bool {
	s.mu.Lock()
	t, ok := s.tasks[name]
	delete(s.tasks, name)
	s.mu.Unlock()

	if !ok {
		return false
	}
	t.cancel()
	<-t.done

	log.Debug("周期任务已禁用", "task", name)
	return true
}

// Enabled 任务是否在运行
func (s *Scheduler) Enabled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[name]
	return ok
}

// Stop 停止所有任务，之后的 Enable 调用返回 false
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	tasks := s.tasks
	s.tasks = make(map[string]*task)
	s.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
	}
}
