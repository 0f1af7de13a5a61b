package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"nft-sniper/internal/execution"
	"nft-sniper/internal/marketplace"
	"nft-sniper/internal/scanner"
	"nft-sniper/internal/store"
)

// Service 负责持久化监控事件，写入失败只记日志。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化监控服务，创建所需表结构。
func NewService(ctx context.Context, st *store.Store, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	err := st.Migrate(ctx, "monitor",
		`CREATE TABLE IF NOT EXISTS monitor_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_monitor_events_type ON monitor_events(event_type);`,
	)
	if err != nil {
		return nil, err
	}

	return &Service{
		db:     st.DB(),
		logger: logger.Named("monitor"),
	}, nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO monitor_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}

	return nil
}

func (s *Service) record(ctx context.Context, typ EventType, payload interface{}) {
	// 关停阶段 ctx 可能已取消，事件仍需落库
	ctx = context.WithoutCancel(ctx)
	if err := s.Record(ctx, Event{Type: typ, Timestamp: time.Now().UTC(), Payload: payload}); err != nil {
		s.logger.Warn("记录监控事件失败", zap.String("type", string(typ)), zap.Error(err))
	}
}

// PollCompleted 记录产生匹配或错误的轮询，空轮询只计日志。
func (s *Service) PollCompleted(ctx context.Context, report scanner.Report) {
	if report.Matched == 0 && report.Errors == 0 {
		return
	}
	s.record(ctx, EventPoll, PollPayload{Report: report})
}

// SourceFailed 记录挂单源不可用。
func (s *Service) SourceFailed(ctx context.Context, wallet string, err error) {
	payload := SourceErrorPayload{Wallet: wallet, Message: err.Error()}
	var srcErr *marketplace.SourceUnavailableError
	if errors.As(err, &srcErr) {
		payload.Status = srcErr.Status
		payload.Message = srcErr.Message
	}
	s.record(ctx, EventSourceError, payload)
}

// RecordOutcome 记录任务执行结果，跳过未提交任何交易的任务。
func (s *Service) RecordOutcome(ctx context.Context, outcome execution.Outcome) {
	if len(outcome.Submitted) == 0 && outcome.Err == nil {
		return
	}
	s.record(ctx, EventPurchase, PurchasePayload{Outcome: outcome})
}

// RecordShutdown 记录全局停止。
func (s *Service) RecordShutdown(ctx context.Context, reason string, bought []string) {
	s.record(ctx, EventShutdown, ShutdownPayload{Reason: reason, Bought: bought})
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	s.record(ctx, EventError, ErrorPayload{
		Message: msg,
		Error:   err.Error(),
		Context: ctxMap,
	})
}

// ListEvents 按类型检索最近事件。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_type, payload, created_at FROM monitor_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339Nano, created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}

		events = append(events, Event{
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}

	return events, nil
}
