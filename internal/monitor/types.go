package monitor

import (
	"time"

	"nft-sniper/internal/execution"
	"nft-sniper/internal/scanner"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventPoll        EventType = "poll"
	EventSourceError EventType = "source_error"
	EventPurchase    EventType = "purchase"
	EventShutdown    EventType = "shutdown"
	EventError       EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// PollPayload 记录一次产生匹配的轮询。
type PollPayload struct {
	Report scanner.Report `json:"report"`
}

// SourceErrorPayload 记录挂单源不可用。
type SourceErrorPayload struct {
	Wallet  string `json:"wallet"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

// PurchasePayload 记录一次任务执行结果。
type PurchasePayload struct {
	Outcome execution.Outcome `json:"outcome"`
}

// ShutdownPayload 记录全局停止。
type ShutdownPayload struct {
	Reason string   `json:"reason"`
	Bought []string `json:"bought"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
