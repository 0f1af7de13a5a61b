package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RelayClient 将合约调用提交给外部签名服务，由其持有私钥并广播交易。
type RelayClient struct {
	endpoint   string
	memo       string
	httpClient *http.Client
	logger     *zap.Logger
}

type relayRequest struct {
	Sender   string          `json:"sender"`
	Contract string          `json:"contract"`
	Msg      json.RawMessage `json:"msg"`
	Funds    []Coin          `json:"funds"`
	Memo     string          `json:"memo,omitempty"`
	Fee      string          `json:"fee"`
}

type relayError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// NewRelayClient 创建签名服务客户端，timeout 为 0 表示不限制单笔提交时长。
func NewRelayClient(baseURL, memo string, timeout time.Duration, logger *zap.Logger) *RelayClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelayClient{
		endpoint:   strings.TrimRight(baseURL, "/") + "/execute",
		memo:       memo,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Execute 提交合约调用并返回交易结果。
func (c *RelayClient) Execute(ctx context.Context, sender, contract string, msg any, funds []Coin) (TxResult, error) {
	rawMsg, err := json.Marshal(msg)
	if err != nil {
		return TxResult{}, fmt.Errorf("execution: 序列化指令失败: %w", err)
	}

	body, err := json.Marshal(relayRequest{
		Sender:   sender,
		Contract: contract,
		Msg:      rawMsg,
		Funds:    funds,
		Memo:     c.memo,
		Fee:      "auto",
	})
	if err != nil {
		return TxResult{}, fmt.Errorf("execution: 序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return TxResult{}, fmt.Errorf("execution: 构造请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TxResult{}, fmt.Errorf("execution: 请求签名服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		var payload relayError
		reason := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &payload) == nil {
			if payload.Message != "" {
				reason = payload.Message
			} else if payload.Error != "" {
				reason = payload.Error
			}
		}
		return TxResult{}, fmt.Errorf("execution: 签名服务返回 %d: %s", resp.StatusCode, reason)
	}

	var result TxResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return TxResult{}, fmt.Errorf("execution: 解析签名服务响应失败: %w", err)
	}

	c.logger.Debug("签名服务已返回",
		zap.String("sender", sender),
		zap.String("tx_hash", result.TxHash),
		zap.Uint32("code", result.Code),
		zap.Duration("latency", time.Since(start)),
	)
	return result, nil
}
