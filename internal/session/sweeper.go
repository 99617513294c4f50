package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweep 移除所有已过期的会话，返回移除数量。
//
// 过期判断本身在读取时惰性完成，Sweep 只用于回收长期无人访问的会话占用的内存。
func (s *Store) Sweep() int {
	now := s.now()
	count := 0
	for owner, st := range s.snapshot() {
		st.mu.Lock()
		if s.expireLocked(owner, st, now) {
			count++
		}
		st.mu.Unlock()
	}
	return count
}

// RunSweeper 按 interval 周期执行 Sweep，直到 ctx 结束。interval<=0 时立即返回。
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("starting expired session cleanup task", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cleanup task stopped")
			return
		case <-ticker.C:
			if count := s.Sweep(); count > 0 {
				s.logger.Info("expired sessions cleaned up",
					zap.Int("count", count),
					zap.Int("installed", s.installedSessions()),
				)
			}
		}
	}
}
