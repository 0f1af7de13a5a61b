// Package queue 实现全局唯一的购买任务队列：先进先出，任意时刻最多一个任务在执行。
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"nft-sniper/internal/execution"
)

// Executor 执行单个购买任务。
type Executor interface {
	Execute(ctx context.Context, task execution.Task) execution.Outcome
}

// Halter 报告是否已达到完成条件。
type Halter interface {
	Completed() bool
}

// OutcomeHook 在每个任务执行完成后被调用。
type OutcomeHook func(ctx context.Context, outcome execution.Outcome)

// Option 调整队列行为。
type Option func(*Queue)

// WithOutcomeHook 设置任务结果回调。
func WithOutcomeHook(hook OutcomeHook) Option {
	return func(q *Queue) {
		q.hook = hook
	}
}

// Queue 为所有钱包共享的执行队列，inFlight 标志保证全局单笔提交。
type Queue struct {
	mu       sync.Mutex
	pending  []execution.Task
	inFlight atomic.Bool
	wake     chan struct{}

	exec   Executor
	halt   Halter
	hook   OutcomeHook
	logger *zap.Logger
}

// New 创建执行队列，halt 可为空。
func New(exec Executor, halt Halter, logger *zap.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		pending: make([]execution.Task, 0, 16),
		wake:    make(chan struct{}, 1),
		exec:    exec,
		halt:    halt,
		logger:  logger.Named("queue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue 将任务追加到队尾，不阻塞。
func (q *Queue) Enqueue(task execution.Task) {
	q.mu.Lock()
	q.pending = append(q.pending, task)
	depth := len(q.pending)
	q.mu.Unlock()

	q.logger.Debug("任务已入队",
		zap.String("task_id", task.ID),
		zap.String("wallet", task.Sender),
		zap.Strings("token_ids", task.TokenIDs()),
		zap.Int("depth", depth),
	)

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len 返回待执行任务数。
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InFlight 报告当前是否有任务在执行。
func (q *Queue) InFlight() bool {
	return q.inFlight.Load()
}

// Drain 在没有任务执行时依次处理队列直至清空，返回本次处理的任务数。
// 已有任务在执行或队列为空时立即返回。
func (q *Queue) Drain(ctx context.Context) int {
	processed := 0
	for {
		if !q.inFlight.CompareAndSwap(false, true) {
			return processed
		}
		processed += q.consume(ctx)
		q.inFlight.Store(false)

		// 释放标志后复查，避免与并发入队之间漏掉任务
		if ctx.Err() != nil || q.Len() == 0 || q.halted() {
			return processed
		}
	}
}

func (q *Queue) consume(ctx context.Context) int {
	processed := 0
	for {
		if ctx.Err() != nil {
			return processed
		}
		if q.halted() {
			if dropped := q.clear(); dropped > 0 {
				q.logger.Info("已完成购买目标，丢弃剩余任务", zap.Int("dropped", dropped))
			}
			return processed
		}

		task, ok := q.pop()
		if !ok {
			return processed
		}

		// 已开始的提交不随关停取消
		outcome := q.exec.Execute(context.WithoutCancel(ctx), task)
		processed++
		if q.hook != nil {
			q.hook(ctx, outcome)
		}
	}
}

// Run 作为队列唯一的消费者，在收到入队信号时排空队列，直到 ctx 结束。
func (q *Queue) Run(ctx context.Context) error {
	q.Drain(ctx)
	for {
		select {
		case <-ctx.Done():
			if n := q.Len(); n > 0 {
				q.logger.Info("执行队列停止，未处理任务被丢弃", zap.Int("pending", n))
			}
			return nil
		case <-q.wake:
			q.Drain(ctx)
		}
	}
}

func (q *Queue) pop() (execution.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return execution.Task{}, false
	}
	task := q.pending[0]
	q.pending[0] = execution.Task{}
	q.pending = q.pending[1:]
	return task, true
}

func (q *Queue) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	q.pending = q.pending[:0]
	return n
}

func (q *Queue) halted() bool {
	return q.halt != nil && q.halt.Completed()
}
