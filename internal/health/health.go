// Package health 基于 heptiolabs/healthcheck 提供存活与就绪检查。
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// DomainLister 就绪检查依赖的服务商能力
type DomainLister interface {
	ListDomains(ctx context.Context) ([]string, error)
}

// SessionCounter 存活检查依赖的存储能力
type SessionCounter interface {
	ActiveSessions() int
}

// Pinger 可探测连通性的外部依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker 健康检查器
type HealthChecker struct {
	health   healthcheck.Handler
	store    SessionCounter
	provider DomainLister
	deps     map[string]Pinger
	timeout  time.Duration
	logger   *zap.Logger
}

// Options 健康检查选项
type Options struct {
	ProviderTimeout time.Duration     // 就绪检查访问服务商的超时，默认 5 秒
	MaxGoroutines   int               // 协程数量上限，0 表示不检查
	Dependencies    map[string]Pinger // 额外的就绪检查，如 Redis
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(store SessionCounter, provider DomainLister, opts Options, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 5 * time.Second
	}

	hc := &HealthChecker{
		health:   healthcheck.NewHandler(),
		store:    store,
		provider: provider,
		deps:     opts.Dependencies,
		timeout:  opts.ProviderTimeout,
		logger:   logger,
	}
	hc.addChecks(opts)
	return hc
}

func (hc *HealthChecker) addChecks(opts Options) {
	hc.health.AddLivenessCheck("session-store", hc.checkStore)

	if opts.MaxGoroutines > 0 {
		hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(opts.MaxGoroutines))
	}

	if hc.provider != nil {
		hc.health.AddReadinessCheck("mail-provider", healthcheck.Timeout(hc.checkProvider, hc.timeout))
	}

	for name, dep := range opts.Dependencies {
		hc.health.AddReadinessCheck(name, hc.pingCheck(dep))
	}
}

func (hc *HealthChecker) pingCheck(dep Pinger) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), hc.timeout)
		defer cancel()
		return dep.Ping(ctx)
	}
}

func (hc *HealthChecker) checkStore() error {
	if hc.store == nil {
		return errors.New("session store not configured")
	}
	if n := hc.store.ActiveSessions(); n < 0 {
		return fmt.Errorf("active session counter corrupted: %d", n)
	}
	return nil
}

func (hc *HealthChecker) checkProvider() error {
	ctx, cancel := context.WithTimeout(context.Background(), hc.timeout)
	defer cancel()

	domains, err := hc.provider.ListDomains(ctx)
	if err != nil {
		hc.logger.Warn("provider readiness check failed", zap.Error(err))
		return err
	}
	if len(domains) == 0 {
		return errors.New("provider has no active domains")
	}
	return nil
}

// LiveEndpoint 存活检查
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查（包含存活检查）
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// CheckHealth 执行全部检查并返回可读的结果，供 /health 汇总展示
func (hc *HealthChecker) CheckHealth() map[string]string {
	results := make(map[string]string)

	if err := hc.checkStore(); err != nil {
		results["session-store"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["session-store"] = "OK"
	}

	if hc.provider == nil {
		results["mail-provider"] = "NOT_CONFIGURED"
	} else if err := hc.checkProvider(); err != nil {
		results["mail-provider"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["mail-provider"] = "OK"
	}

	for name, dep := range hc.deps {
		if err := hc.pingCheck(dep)(); err != nil {
			results[name] = fmt.Sprintf("ERROR: %v", err)
		} else {
			results[name] = "OK"
		}
	}

	if hc.store != nil {
		results["active_sessions"] = fmt.Sprintf("%d", hc.store.ActiveSessions())
	}
	results["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())
	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results
}
