package brute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrQueueTimeout 任务从入队到完成超出墙钟预算
	ErrQueueTimeout = errors.New("brute task exceeded queue timeout")

	// ErrTaskInFlight 同一 (目标, 协议) 已有在途任务
	ErrTaskInFlight = errors.New("brute task already in flight for this target/protocol")
)

// Pool 爆破工作池
// 固定 worker 数的信号量实现; 同一 (目标, 协议) 互斥，
// 不同目标或不同协议的任务可并行占用空闲槽位
type Pool struct {
	slots        chan struct{}
	queueTimeout time.Duration

	mu   sync.Mutex
	busy map[string]struct{}
}

// NewPool 创建工作池
func NewPool(workers int, queueTimeout time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		slots:        make(chan struct{}, workers),
		queueTimeout: queueTimeout,
		busy:         make(map[string]struct{}),
	}
}

// Run 提交任务并等待完成
// 墙钟预算 queue_timeout 覆盖排队 + 执行全程; 超时返回 ErrQueueTimeout，
// 任务上下文同时被取消，槽位立即回收——不配合取消的慢任务被遗弃，
// 不能拖住后续任务
func (p *Pool) Run(ctx context.Context, targetKey, protocol string, fn func(ctx context.Context) TaskResult) (TaskResult, error) {
	key := fmt.Sprintf("%s/%s", targetKey, protocol)

	p.mu.Lock()
	if _, inflight := p.busy[key]; inflight {
		p.mu.Unlock()
		return TaskResult{}, ErrTaskInFlight
	}
	p.busy[key] = struct{}{}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.busy, key)
		p.mu.Unlock()
	}()

	deadline := time.NewTimer(p.queueTimeout)
	defer deadline.Stop()

	// 排队拿槽位
	select {
	case p.slots <- struct{}{}:
	case <-deadline.C:
		return TaskResult{}, ErrQueueTimeout
	case <-ctx.Done():
		return TaskResult{}, ctx.Err()
	}

	taskCtx, cancel := context.WithCancel(ctx)
	var releaseOnce sync.Once
	release := func() { releaseOnce.Do(func() { <-p.slots }) }

	done := make(chan TaskResult, 1)
	go func() {
		res := fn(taskCtx)
		release()
		done <- res
	}()

	select {
	case res := <-done:
		cancel()
		return res, nil
	case <-deadline.C:
		// 取消任务上下文并立刻放回槽位，不等慢任务收尾;
		// 被遗弃的协程结束时经由 releaseOnce 不会二次释放
		cancel()
		release()
		return TaskResult{}, ErrQueueTimeout
	case <-ctx.Done():
		cancel()
		release()
		return TaskResult{}, ctx.Err()
	}
}

// Busy 在途任务数
func (p *Pool) Busy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.busy)
}
