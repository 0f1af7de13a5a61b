package execution

import (
	"time"

	"github.com/google/uuid"

	"nft-sniper/internal/marketplace"
)

// Coin 为随交易附带的资金。
type Coin struct {
	Amount string `json:"amount"`
	Denom  string `json:"denom"`
}

// Task 为一次待执行的购买任务，从入队到出队由执行队列独占。
type Task struct {
	ID         string
	Sender     string
	Listings   []marketplace.Listing
	Client     Client
	EnqueuedAt time.Time
}

// NewTask 创建带唯一 ID 的购买任务。
func NewTask(sender string, client Client, listings ...marketplace.Listing) Task {
	return Task{
		ID:         uuid.NewString(),
		Sender:     sender,
		Listings:   listings,
		Client:     client,
		EnqueuedAt: time.Now().UTC(),
	}
}

// TokenIDs 返回任务包含的 token。
func (t Task) TokenIDs() []string {
	ids := make([]string, 0, len(t.Listings))
	for _, l := range t.Listings {
		ids = append(ids, l.TokenID)
	}
	return ids
}

// TxResult 为交易提交结果。
type TxResult struct {
	TxHash string `json:"txhash"`
	Code   uint32 `json:"code"`
	RawLog string `json:"raw_log"`
}

// Outcome 汇总一次任务执行的结果，错误只记录不向上传播。
type Outcome struct {
	TaskID    string        `json:"task_id"`
	Strategy  string        `json:"strategy"`
	Sender    string        `json:"sender"`
	Submitted []string      `json:"submitted"`
	Bought    []string      `json:"bought"`
	TxHashes  []string      `json:"tx_hashes"`
	Funds     []Coin        `json:"funds"`
	Completed bool          `json:"completed"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Err error `json:"-"`
}

// Succeeded 判断任务是否至少买到一个 token。
func (o Outcome) Succeeded() bool {
	return len(o.Bought) > 0
}
