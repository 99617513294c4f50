package identity

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tempmail/mailbot/internal/cache"
	"tempmail/mailbot/internal/domain"
	"tempmail/mailbot/internal/provider"
)

// domainsFlightKey 合并域名请求使用的键
const domainsFlightKey = "domains"

// DomainCache 缓存服务商返回的域名列表
type DomainCache interface {
	GetDomains(ctx context.Context) ([]string, bool)
	SetDomains(ctx context.Context, domains []string)
}

// names 随机前缀使用的名字语料
var names = []string{
	"Aanya", "Meera", "Saanvi", "Anika", "Diya", "Kiara", "Zara", "Sophia", "Emma", "Olivia",
	"Ava", "Lily", "Mila", "Nora", "Ella", "Isha", "Tara", "Riya", "Anaya", "Myra", "Neha",
	"Shruti", "Kavya", "Radhika", "Simran", "Ira", "Aarohi", "Ishita", "Avni", "Navya",
}

// Generator 生成一次性邮箱地址。
type Generator struct {
	provider provider.MailProvider
	logger   *zap.Logger
	group    singleflight.Group
	domains  DomainCache // nil 表示不缓存

	mu     sync.Mutex
	random *rand.Rand
}

// Option 配置 Generator
type Option func(*Generator)

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithDomainCache 缓存服务商返回的域名列表 ttl 时长，ttl<=0 时不缓存
func WithDomainCache(ttl time.Duration) Option {
	return func(g *Generator) {
		if ttl > 0 {
			g.domains = cache.NewLocalDomainCache(ttl)
		} else {
			g.domains = nil
		}
	}
}

// WithSharedDomainCache 使用外部缓存（如多实例共享的 Redis）保存域名列表
func WithSharedDomainCache(c DomainCache) Option {
	return func(g *Generator) {
		g.domains = c
	}
}

// WithRandSource 替换随机数源（测试用）
func WithRandSource(src rand.Source) Option {
	return func(g *Generator) {
		g.random = rand.New(src)
	}
}

// NewGenerator 创建地址生成器
func NewGenerator(p provider.MailProvider, opts ...Option) *Generator {
	g := &Generator{
		provider: p,
		logger:   zap.NewNop(),
		random:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewAddress 生成完整邮箱地址。
//
// preferred 为空（或仅含空白）时从名字语料随机生成前缀；否则转为小写并校验。
// 服务商没有返回域名或请求失败时返回 domain.ErrNoDomainsAvailable。
func (g *Generator) NewAddress(ctx context.Context, preferred string) (string, error) {
	localPart, err := domain.NormalizeLocalPart(preferred)
	if err != nil {
		return "", err
	}
	if localPart == "" {
		localPart = g.randomLocalPart()
	}

	domains, err := g.availableDomains(ctx)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s@%s", localPart, g.pick(domains)), nil
}

// availableDomains 获取可用域名，并发请求合并为一次远程调用
func (g *Generator) availableDomains(ctx context.Context) ([]string, error) {
	if g.domains != nil {
		if cached, ok := g.domains.GetDomains(ctx); ok {
			return cached, nil
		}
	}

	ch := g.group.DoChan(domainsFlightKey, func() (interface{}, error) {
		// 合并后的请求不应因为某个调用方取消而失败
		fetchCtx := context.WithoutCancel(ctx)
		domains, err := g.provider.ListDomains(fetchCtx)
		if err != nil {
			return nil, err
		}
		if len(domains) > 0 && g.domains != nil {
			g.domains.SetDomains(fetchCtx, domains)
		}
		return domains, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			g.logger.Warn("domain fetch error", zap.Error(res.Err))
			return nil, domain.ErrNoDomainsAvailable
		}
		domains := res.Val.([]string)
		if len(domains) == 0 {
			g.logger.Warn("mail provider returned no domains")
			return nil, domain.ErrNoDomainsAvailable
		}
		return domains, nil
	}
}

// randomLocalPart 名字 + 四位数字后缀，不与已有会话去重
func (g *Generator) randomLocalPart() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	name := names[g.random.Intn(len(names))]
	return fmt.Sprintf("%s%d", strings.ToLower(name), 1000+g.random.Intn(9000))
}

// pick 均匀随机选择一个域名
func (g *Generator) pick(domains []string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return domains[g.random.Intn(len(domains))]
}
