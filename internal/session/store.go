// Package session 管理每个用户的一次性邮箱会话。
//
// Store 是活动会话的唯一数据源：每个用户最多持有一个会话，新建会话会原子地替换旧会话，
// 并在同一临界区内更新统计计数。收藏与过期偏好和会话同属一个用户记录，但生命周期独立。
//
// 并发模型：
//   - 每个用户一把互斥锁，不同用户之间的操作互不阻塞
//   - 调用邮件服务商的网络请求在锁外执行，只在提交结果时重新加锁
//   - 同一用户并发创建会话时，后提交者胜出
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tempmail/mailbot/internal/domain"
	"tempmail/mailbot/internal/monitoring"
	"tempmail/mailbot/internal/provider"
)

// AddressGenerator 生成一次性邮箱地址
type AddressGenerator interface {
	NewAddress(ctx context.Context, preferred string) (string, error)
}

// Store 并发安全的用户会话存储。
type Store struct {
	provider      provider.MailProvider
	generator     AddressGenerator
	logger        *zap.Logger
	metrics       *monitoring.Metrics
	now           func() time.Time
	newCredential func() string
	defaultExpiry int

	mu     sync.Mutex             // 仅保护 owners 映射本身
	owners map[string]*ownerState // 用户记录创建后不删除，统计需要在会话删除后保留

	installed atomic.Int64 // 已安装的会话数，含尚未被发现的过期会话
}

// ownerState 单个用户的全部状态，所有字段由 mu 保护
type ownerState struct {
	mu       sync.Mutex
	session  *domain.Session
	stats    domain.Stats
	favorite *domain.Favorite
	expiry   int // 秒，0 表示永不过期
}

// Option 配置 Store
type Option func(*Store)

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics 设置监控指标
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(s *Store) {
		s.metrics = metrics
	}
}

// WithCredentialFunc 替换账号密码生成函数
func WithCredentialFunc(fn func() string) Option {
	return func(s *Store) {
		s.newCredential = fn
	}
}

// WithDefaultExpiry 设置新用户的初始过期偏好（秒）
func WithDefaultExpiry(seconds int) Option {
	return func(s *Store) {
		if seconds > 0 {
			s.defaultExpiry = seconds
		}
	}
}

// NewStore 创建会话存储
func NewStore(p provider.MailProvider, generator AddressGenerator, opts ...Option) *Store {
	s := &Store{
		provider:      p,
		generator:     generator,
		logger:        zap.NewNop(),
		now:           time.Now,
		newCredential: uuid.NewString,
		owners:        make(map[string]*ownerState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession 为用户创建新的一次性邮箱，并替换其现有会话。
//
// 地址生成、账号注册和令牌签发都在锁外完成；任一远程步骤失败都不会改动存储。
// 提交时按用户当前的过期偏好计算 ExpiresAt，同时 Stats.Created 加一、Stats.Received 归零。
// 旧会话的远程令牌不会被吊销。
func (s *Store) CreateSession(ctx context.Context, owner, preferred string) (*domain.Session, error) {
	if owner == "" {
		return nil, domain.ErrInvalidOwner
	}

	address, err := s.generator.NewAddress(ctx, preferred)
	if err != nil {
		return nil, err
	}

	credential := s.newCredential()
	if err := s.provider.CreateAccount(ctx, address, credential); err != nil {
		return nil, s.accountError(ctx, owner, address, "create account", err)
	}
	token, err := s.provider.IssueToken(ctx, address, credential)
	if err != nil {
		return nil, s.accountError(ctx, owner, address, "issue token", err)
	}

	st := s.state(owner)
	st.mu.Lock()
	defer st.mu.Unlock()

	// 调用方已放弃等待时不安装半成品
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	session := &domain.Session{
		Owner:      owner,
		Address:    address,
		Credential: credential,
		Token:      token,
		CreatedAt:  now,
	}
	if st.expiry > 0 {
		expiresAt := now.Add(time.Duration(st.expiry) * time.Second)
		session.ExpiresAt = &expiresAt
	}

	replaced := st.session != nil
	if !replaced {
		s.installed.Add(1)
	}
	st.session = session
	st.stats.Created++
	st.stats.Received = 0

	if s.metrics != nil {
		s.metrics.RecordSessionCreated(replaced)
		s.metrics.UpdateSessionsActive(s.installedSessions())
	}
	s.logger.Info("session created",
		zap.String("owner", owner),
		zap.String("address", address),
		zap.Bool("replaced", replaced),
		zap.Int64("created", st.stats.Created),
	)

	return session.Clone(), nil
}

// GetSession 返回用户当前会话的副本。
//
// 会话不存在时返回 domain.ErrNotFound；会话已过期时将其移除并返回
// domain.ErrSessionExpired（同样满足 errors.Is(err, domain.ErrNotFound)）。
func (s *Store) GetSession(owner string) (*domain.Session, error) {
	st := s.lookup(owner)
	if st == nil {
		return nil, domain.ErrNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if s.expireLocked(owner, st, s.now()) {
		return nil, domain.ErrSessionExpired
	}
	if st.session == nil {
		return nil, domain.ErrNotFound
	}
	return st.session.Clone(), nil
}

// DeleteSession 删除用户当前会话；会话不存在时直接返回 nil。
func (s *Store) DeleteSession(owner string) error {
	st := s.lookup(owner)
	if st == nil {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session == nil {
		return nil
	}
	address := st.session.Address
	st.session = nil
	s.installed.Add(-1)

	if s.metrics != nil {
		s.metrics.RecordSessionDeleted()
		s.metrics.UpdateSessionsActive(s.installedSessions())
	}
	s.logger.Info("session deleted",
		zap.String("owner", owner),
		zap.String("address", address),
	)
	return nil
}

// RefreshInboxSnapshot 拉取当前会话的收件箱，并以邮件数覆盖 Stats.Received。
//
// 没有活动会话时返回 domain.ErrNoActiveSession。服务商请求失败时返回空列表且不报错，
// Stats.Received 保持不变。请求期间会话被替换或删除时，结果仍返回给调用方但不写入统计。
func (s *Store) RefreshInboxSnapshot(ctx context.Context, owner string) ([]domain.Message, error) {
	st := s.lookup(owner)
	if st == nil {
		s.recordInbox("no_session")
		return nil, domain.ErrNoActiveSession
	}

	st.mu.Lock()
	s.expireLocked(owner, st, s.now())
	if st.session == nil {
		st.mu.Unlock()
		s.recordInbox("no_session")
		return nil, domain.ErrNoActiveSession
	}
	cur := st.session
	token := cur.Token
	st.mu.Unlock()

	messages, err := s.provider.ListMessages(ctx, token)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn("inbox refresh failed, treating as empty",
			zap.String("owner", owner),
			zap.Error(err),
		)
		s.recordInbox("provider_error")
		return []domain.Message{}, nil
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	st.mu.Lock()
	if st.session == cur && !cur.Expired(s.now()) {
		st.stats.Received = len(messages)
	}
	st.mu.Unlock()

	s.recordInbox("ok")
	return messages, nil
}

// SaveFavorite 将当前会话复制到收藏，覆盖之前的收藏。
func (s *Store) SaveFavorite(owner string) error {
	st := s.lookup(owner)
	if st == nil {
		return domain.ErrNoActiveSession
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := s.now()
	s.expireLocked(owner, st, now)
	if st.session == nil {
		return domain.ErrNoActiveSession
	}

	st.favorite = &domain.Favorite{
		Session: *st.session.Clone(),
		SavedAt: now,
	}

	if s.metrics != nil {
		s.metrics.RecordFavoriteSaved()
	}
	s.logger.Info("favorite saved",
		zap.String("owner", owner),
		zap.String("address", st.session.Address),
	)
	return nil
}

// SetExpiryPreference 设置用户的过期偏好（秒，0 表示永不过期）。
//
// 只对之后创建的会话生效，不修改当前会话的过期时间。
func (s *Store) SetExpiryPreference(owner string, seconds int) error {
	if owner == "" {
		return domain.ErrInvalidOwner
	}
	if seconds < 0 {
		return domain.ErrInvalidExpiry
	}

	st := s.state(owner)
	st.mu.Lock()
	st.expiry = seconds
	st.mu.Unlock()

	s.logger.Debug("expiry preference set",
		zap.String("owner", owner),
		zap.Int("seconds", seconds),
	)
	return nil
}

// ExpiryPreference 返回用户的过期偏好（秒）
func (s *Store) ExpiryPreference(owner string) int {
	st := s.lookup(owner)
	if st == nil {
		return s.defaultExpiry
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.expiry
}

// GetStats 返回用户统计；从未使用过的用户返回零值
func (s *Store) GetStats(owner string) domain.Stats {
	st := s.lookup(owner)
	if st == nil {
		return domain.Stats{}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.stats
}

// GetFavorite 返回用户收藏的会话副本
func (s *Store) GetFavorite(owner string) (*domain.Favorite, error) {
	st := s.lookup(owner)
	if st == nil {
		return nil, domain.ErrNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.favorite == nil {
		return nil, domain.ErrNotFound
	}
	fav := *st.favorite
	fav.Session = *st.favorite.Session.Clone()
	return &fav, nil
}

// ActiveSessions 返回未过期的会话数。只读，不移除过期会话。
func (s *Store) ActiveSessions() int {
	now := s.now()
	count := 0
	for _, st := range s.snapshot() {
		st.mu.Lock()
		if st.session != nil && !st.session.Expired(now) {
			count++
		}
		st.mu.Unlock()
	}
	return count
}

// installedSessions 已安装的会话数，可在持有用户锁时调用
func (s *Store) installedSessions() int {
	return int(s.installed.Load())
}

// lookup 查找用户记录，不存在时返回 nil
func (s *Store) lookup(owner string) *ownerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owners[owner]
}

// state 查找或创建用户记录
func (s *Store) state(owner string) *ownerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.owners[owner]
	if !ok {
		st = &ownerState{expiry: s.defaultExpiry}
		s.owners[owner] = st
	}
	return st
}

// snapshot 返回当前全部用户记录
func (s *Store) snapshot() map[string]*ownerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*ownerState, len(s.owners))
	for owner, st := range s.owners {
		out[owner] = st
	}
	return out
}

// expireLocked 若会话已过期则移除，返回是否发生了移除。调用方须持有 st.mu。
func (s *Store) expireLocked(owner string, st *ownerState, now time.Time) bool {
	if st.session == nil || !st.session.Expired(now) {
		return false
	}
	address := st.session.Address
	st.session = nil
	s.installed.Add(-1)

	if s.metrics != nil {
		s.metrics.RecordSessionsExpired(1)
		s.metrics.UpdateSessionsActive(s.installedSessions())
	}
	s.logger.Info("session expired",
		zap.String("owner", owner),
		zap.String("address", address),
	)
	return true
}

// accountError 将远程失败转换为 ErrAccountCreationFailed；调用方取消时返回上下文错误
func (s *Store) accountError(ctx context.Context, owner, address, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	s.logger.Warn("email creation failed",
		zap.String("owner", owner),
		zap.String("address", address),
		zap.String("step", step),
		zap.Error(err),
	)
	if s.metrics != nil {
		s.metrics.RecordError("account_creation", "session")
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrAccountCreationFailed, step, err)
}

func (s *Store) recordInbox(result string) {
	if s.metrics != nil {
		s.metrics.RecordInboxRefresh(result)
	}
}
