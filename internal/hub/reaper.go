package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/switchboard-go/pkg/log"
)

// Reaper 周期性地回收空闲 session。
type Reaper struct {
	registry *Registry
	interval time.Duration
	logger   *log.MLogger
}

// NewReaper 创建回收器，interval <= 0 时使用默认的 60 秒。
func NewReaper(registry *Registry, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultConfig().SweepInterval
	}
	return &Reaper{
		registry: registry,
		interval: interval,
		logger:   log.With(log.FieldModule("hub"), log.FieldComponent("reaper")),
	}
}

// Run 阻塞运行直到 ctx 被取消，始终返回 nil。
func (rp *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(rp.interval)
	defer ticker.Stop()

	rp.logger.Info("idle reaper started",
		zap.Duration("interval", rp.interval), zap.Duration("idleTimeout", rp.registry.IdleTimeout()))
	for {
		select {
		case <-ctx.Done():
			rp.logger.Info("idle reaper stopped")
			return nil
		case <-ticker.C:
			rp.Tick()
		}
	}
}

// Tick 执行一次扫描，返回本次被回收的 session 名称。
// 扫描中的 panic 会被记录并吞掉，回收器继续运行。
func (rp *Reaper) Tick() (evicted []string) {
	defer func() {
		if x := recover(); x != nil {
			rp.logger.Error("idle sweep panicked", zap.Any("panic", x), zap.Stack("stack"))
		}
	}()

	now := rp.registry.clock()
	evicted = rp.registry.Sweep(now)
	for _, name := range evicted {
		rp.logger.Info("session timed out",
			log.FieldSession(name), zap.Duration("idleTimeout", rp.registry.IdleTimeout()))
	}
	return evicted
}
