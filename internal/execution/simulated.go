package execution

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SimulatedCall 记录一次模拟提交。
type SimulatedCall struct {
	Sender   string
	Contract string
	Msg      json.RawMessage
	Funds    []Coin
	TxHash   string
	Failed   bool
}

// SimulatedClient 不上链，生成伪交易哈希，用于演练配置与策略。
type SimulatedClient struct {
	mu          sync.Mutex
	failureRate float64
	rng         *rand.Rand
	calls       []SimulatedCall
	logger      *zap.Logger
}

// NewSimulatedClient 创建模拟执行客户端，failureRate 为随机拒绝比例。
func NewSimulatedClient(failureRate float64, logger *zap.Logger) *SimulatedClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatedClient{
		failureRate: failureRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:      logger,
	}
}

// Execute 记录调用并返回模拟结果。
func (c *SimulatedClient) Execute(ctx context.Context, sender, contract string, msg any, funds []Coin) (TxResult, error) {
	if err := ctx.Err(); err != nil {
		return TxResult{}, err
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return TxResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	call := SimulatedCall{Sender: sender, Contract: contract, Msg: raw, Funds: funds}
	if c.failureRate > 0 && c.rng.Float64() < c.failureRate {
		call.Failed = true
		c.calls = append(c.calls, call)
		c.logger.Info("模拟交易被拒绝", zap.String("sender", sender))
		return TxResult{Code: 5, RawLog: "simulated rejection"}, nil
	}

	call.TxHash = strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	c.calls = append(c.calls, call)
	c.logger.Info("模拟交易已提交",
		zap.String("sender", sender),
		zap.String("tx_hash", call.TxHash),
		zap.ByteString("msg", raw),
	)
	return TxResult{TxHash: call.TxHash}, nil
}

// Calls 返回已记录的模拟提交。
func (c *SimulatedClient) Calls() []SimulatedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SimulatedCall, len(c.calls))
	copy(out, c.calls)
	return out
}
