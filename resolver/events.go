package resolver

import (
	"context"
	"time"

	"github.com/testwing/testwing/pkg/logger"
)

// Events 结构化观测事件，仅用于上报，引擎不读取
type Events interface {
	ResolveStart(ctx context.Context, description string)
	StrategyProbe(ctx context.Context, description, strategy string, matched bool)
	Resolved(ctx context.Context, description, strategy string, elapsed time.Duration)
	HealingStart(ctx context.Context, originalLocator string)
	HealingStrategy(ctx context.Context, originalLocator, strategy string, ok bool, confidence float64)
	HealingDone(ctx context.Context, originalLocator string, success bool, elapsed time.Duration)
}

// logEvents 默认实现：写入结构化日志
type logEvents struct{}

// NewLogEvents 创建基于日志的事件上报
func NewLogEvents() Events { return logEvents{} }

func (logEvents) ResolveStart(ctx context.Context, description string) {
	logger.Debug(ctx, "[Resolve] Start: %s", description)
}

func (logEvents) StrategyProbe(ctx context.Context, description, strategy string, matched bool) {
	if matched {
		logger.Info(ctx, "[Resolve] Strategy matched for %q: %s", description, strategy)
	} else {
		logger.Debug(ctx, "[Resolve] Strategy missed for %q: %s", description, strategy)
	}
}

func (logEvents) Resolved(ctx context.Context, description, strategy string, elapsed time.Duration) {
	logger.Info(ctx, "[Resolve] Resolved %q via %s in %v", description, strategy, elapsed)
}

func (logEvents) HealingStart(ctx context.Context, originalLocator string) {
	logger.Info(ctx, "[Heal] Start healing for locator: %s", originalLocator)
}

func (logEvents) HealingStrategy(ctx context.Context, originalLocator, strategy string, ok bool, confidence float64) {
	if ok {
		logger.Info(ctx, "[Heal] Strategy %s healed %q (confidence %.0f)", strategy, originalLocator, confidence)
	} else {
		logger.Debug(ctx, "[Heal] Strategy %s produced no candidate for %q", strategy, originalLocator)
	}
}

func (logEvents) HealingDone(ctx context.Context, originalLocator string, success bool, elapsed time.Duration) {
	logger.Info(ctx, "[Heal] Healing finished for %q: success=%v, elapsed=%v", originalLocator, success, elapsed)
}
