package tracker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Ledger 持久化已购买记录，可为空。
type Ledger interface {
	Put(ctx context.Context, purchase Purchase) error
	LoadBought(ctx context.Context) ([]string, error)
}

// Tracker 维护已购集合、目标集合与购买上限，判断何时结束运行。
// 已购集合只增不减，完成信号只触发一次。
type Tracker struct {
	mu      sync.RWMutex
	bought  map[string]struct{}
	order   []string
	targets map[string]struct{}
	budget  int

	done   chan struct{}
	once   sync.Once
	reason string

	ledger Ledger
	logger *zap.Logger
}

// New 创建完成度追踪器，targets 仅在 explicit 模式下非空。
func New(targets []string, budget int, ledger Ledger, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}

	set := make(map[string]struct{}, len(targets))
	for _, id := range targets {
		set[id] = struct{}{}
	}

	return &Tracker{
		bought:  make(map[string]struct{}),
		targets: set,
		budget:  budget,
		done:    make(chan struct{}),
		ledger:  ledger,
		logger:  logger,
	}
}

// Resume 从台账恢复已购集合，用于跨重启续跑。
func (t *Tracker) Resume(ctx context.Context) error {
	if t.ledger == nil {
		return nil
	}
	ids, err := t.ledger.LoadBought(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	for _, id := range ids {
		t.addLocked(id)
	}
	count := len(t.order)
	t.mu.Unlock()

	t.logger.Info("已从台账恢复已购记录", zap.Int("bought", count))
	t.evaluate()
	return nil
}

// Record 记录一次成功购买，重复或已完成时返回 false。
func (t *Tracker) Record(ctx context.Context, purchase Purchase) bool {
	if t.Completed() {
		return false
	}

	t.mu.Lock()
	added := !t.satisfiedLocked() && t.addLocked(purchase.TokenID)
	t.mu.Unlock()
	if !added {
		return false
	}

	if t.ledger != nil {
		if err := t.ledger.Put(ctx, purchase); err != nil {
			t.logger.Warn("写入购买台账失败", zap.String("token_id", purchase.TokenID), zap.Error(err))
		}
	}

	t.evaluate()
	return true
}

func (t *Tracker) addLocked(id string) bool {
	if _, ok := t.bought[id]; ok {
		return false
	}
	t.bought[id] = struct{}{}
	t.order = append(t.order, id)
	return true
}

// IsBought 判断 token 是否已购买。
func (t *Tracker) IsBought(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.bought[id]
	return ok
}

// Count 返回已购数量。
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Bought 按购买顺序返回已购 token。
func (t *Tracker) Bought() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Remaining 返回距离购买上限还剩的数量。
func (t *Tracker) Remaining() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.budget <= 0 {
		return 0
	}
	if left := t.budget - len(t.order); left > 0 {
		return left
	}
	return 0
}

// Satisfied 计算完成条件：已购覆盖目标集合，或达到购买上限。
func (t *Tracker) Satisfied() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.satisfiedLocked()
}

func (t *Tracker) satisfiedLocked() bool {
	n := len(t.order)
	if len(t.targets) > 0 && n >= len(t.targets) {
		return true
	}
	return t.budget > 0 && n >= t.budget
}

func (t *Tracker) evaluate() {
	if t.Satisfied() {
		t.Complete("已达到购买目标")
	}
}

// Complete 触发全局完成信号，多次调用只生效一次。
func (t *Tracker) Complete(reason string) {
	t.once.Do(func() {
		t.mu.Lock()
		t.reason = reason
		t.mu.Unlock()
		close(t.done)
		t.logger.Info("抢购目标已完成，准备退出",
			zap.String("reason", reason),
			zap.Int("bought", t.Count()),
			zap.Strings("token_ids", t.Bought()),
		)
	})
}

// Done 在完成时关闭。
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Completed 判断是否已完成。
func (t *Tracker) Completed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Reason 返回完成原因。
func (t *Tracker) Reason() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reason
}
