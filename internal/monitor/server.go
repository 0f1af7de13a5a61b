package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// WalletRemover 停止指定钱包的扫描，返回该钱包是否在扫描中。
type WalletRemover func(wallet string) bool

// HandlerOption 调整监控接口。
type HandlerOption func(*handlerOptions)

type handlerOptions struct {
	removeWallet WalletRemover
}

// WithWalletRemover 启用 DELETE /wallets/{addr}。
func WithWalletRemover(remove WalletRemover) HandlerOption {
	return func(o *handlerOptions) {
		o.removeWallet = remove
	}
}

// Handler 返回监控接口：GET /events?type=&limit= 查询事件，
// 配置 WalletRemover 时额外提供 DELETE /wallets/{addr} 停止单个钱包。
func Handler(svc *Service, logger *zap.Logger, opts ...HandlerOption) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	var options handlerOptions
	for _, opt := range opts {
		opt(&options)
	}

	mux := http.NewServeMux()
	if options.removeWallet != nil {
		mux.HandleFunc("DELETE /wallets/{addr}", func(w http.ResponseWriter, r *http.Request) {
			wallet := strings.TrimSpace(r.PathValue("addr"))
			if !options.removeWallet(wallet) {
				http.Error(w, "wallet not scanning", http.StatusNotFound)
				return
			}
			logger.Info("已通过监控接口移除钱包", zap.String("wallet", wallet))
			w.WriteHeader(http.StatusNoContent)
		})
	}
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q := r.URL.Query()
		limit := 200
		if qs := q.Get("limit"); qs != "" {
			if v, err := strconv.Atoi(qs); err == nil && v > 0 {
				if v > 1000 {
					v = 1000
				}
				limit = v
			}
		}

		eventType := EventType("")
		if typ := strings.TrimSpace(q.Get("type")); typ != "" {
			eventType = EventType(strings.ToLower(typ))
		}

		events, err := svc.ListEvents(r.Context(), eventType, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(events); err != nil {
			logger.Warn("写入监控响应失败", zap.Error(err))
		}
	})
	return mux
}

// Serve 在指定端口提供事件查询接口，阻塞至 ctx 结束。
func Serve(ctx context.Context, svc *Service, port int, logger *zap.Logger, opts ...HandlerOption) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("monitor: 监听 %s 失败: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           Handler(svc, logger, opts...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("监控接口已启动", zap.String("addr", ln.Addr().String()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("关闭监控服务失败", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("monitor: 监控服务异常: %w", err)
	}
}
