package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"nft-sniper/internal/scanner"
)

// Sessions 管理每个钱包的扫描循环，可单独移除或整体取消。
type Sessions struct {
	mu      sync.Mutex
	parent  context.Context
	cancels map[string]*session
	wg      sync.WaitGroup
	logger  *zap.Logger
}

type session struct {
	cancel context.CancelFunc
}

// NewSessions 创建会话表，所有会话派生自 parent。
func NewSessions(parent context.Context, logger *zap.Logger) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{
		parent:  parent,
		cancels: make(map[string]*session),
		logger:  logger,
	}
}

// Add 为钱包启动扫描循环，同一地址不能重复添加。
func (s *Sessions) Add(sc *scanner.Scanner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wallet := sc.Wallet()
	if _, ok := s.cancels[wallet]; ok {
		return fmt.Errorf("钱包 %s 已在扫描中", wallet)
	}
	if err := s.parent.Err(); err != nil {
		return fmt.Errorf("会话已关闭: %w", err)
	}

	ctx, cancel := context.WithCancel(s.parent)
	sess := &session{cancel: cancel}
	s.cancels[wallet] = sess

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if err := sc.Run(ctx); err != nil {
			s.logger.Error("钱包扫描异常退出", zap.String("wallet", wallet), zap.Error(err))
		}
		s.mu.Lock()
		if s.cancels[wallet] == sess {
			delete(s.cancels, wallet)
		}
		s.mu.Unlock()
	}()
	return nil
}

// Remove 停止指定钱包的扫描，返回该钱包是否存在。
func (s *Sessions) Remove(wallet string) bool {
	s.mu.Lock()
	sess, ok := s.cancels[wallet]
	delete(s.cancels, wallet)
	s.mu.Unlock()

	if ok {
		sess.cancel()
		s.logger.Info("钱包扫描已移除", zap.String("wallet", wallet))
	}
	return ok
}

// CancelAll 停止全部钱包扫描。
func (s *Sessions) CancelAll() {
	s.mu.Lock()
	sessions := s.cancels
	s.cancels = make(map[string]*session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.cancel()
	}
}

// Len 返回运行中的会话数。
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cancels)
}

// Wait 等待所有扫描循环退出。
func (s *Sessions) Wait() {
	s.wg.Wait()
}
