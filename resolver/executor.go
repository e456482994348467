package resolver

import (
	"context"
	"time"

	"github.com/testwing/testwing/config"
	"github.com/testwing/testwing/driver"
	"github.com/testwing/testwing/models"
	"github.com/testwing/testwing/pkg/logger"
)

// SignatureStore 签名的落盘接口，nil 时仅保留内存签名
type SignatureStore interface {
	SaveVisualSignature(locator string, sig models.VisualSignature) error
	SaveStructureSignature(locator string, sig models.StructureSignature) error
}

// capturedSignatures scriptSignatureCapture 的出参
type capturedSignatures struct {
	Visual    models.VisualSignature    `json:"visual"`
	Structure models.StructureSignature `json:"structure"`
}

// Executor 解析执行器：按序探测描述符策略，失败后移交自愈引擎
type Executor struct {
	cfg     *config.ResolverConfig
	caches  *Caches
	events  Events
	healing *HealingEngine
	store   SignatureStore // 可为 nil
}

func NewExecutor(cfg *config.ResolverConfig, caches *Caches, events Events, healing *HealingEngine, store SignatureStore) *Executor {
	if events == nil {
		events = NewLogEvents()
	}
	return &Executor{cfg: cfg, caches: caches, events: events, healing: healing, store: store}
}

// Resolve 解析描述符为元素句柄
// 顺序：描述缓存 → 按序探测（带重试）→ 自愈。命中后采集签名并回填缓存
func (e *Executor) Resolve(ctx context.Context, doc driver.Document, desc *models.ElementDescriptor) (*ResolvedHandle, error) {
	start := time.Now()
	e.events.ResolveStart(ctx, desc.Description)

	if desc.Options.CacheEnabled && desc.Description != "" {
		if h, ok := e.caches.GetResolved(desc.Description, doc.Epoch()); ok {
			logger.Debug(ctx, "[Resolve] Cache hit for %q", desc.Description)
			return h, nil
		}
	}

	strategies := desc.Strategies()
	retries := desc.Options.RetryCount
	if retries <= 0 {
		retries = e.cfg.ElementRetryCount
	}
	if retries <= 0 {
		retries = 1
	}
	timeout := desc.Options.Timeout
	if timeout <= 0 {
		timeout = e.cfg.ElementTimeout()
	}

	attempted := make([]string, 0, len(strategies))
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			// 重试间隔固定 200ms，等待页面稳定
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(200 * time.Millisecond):
			}
		}
		for _, s := range strategies {
			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			set, query, err := probeStrategy(probeCtx, doc, s)
			cancel()
			if attempt == 0 {
				attempted = append(attempted, s.String())
			}
			if err != nil || set == nil || set.Count() == 0 {
				e.events.StrategyProbe(ctx, desc.Description, s.String(), false)
				continue
			}
			el, err := set.First()
			if err != nil {
				e.events.StrategyProbe(ctx, desc.Description, s.String(), false)
				continue
			}
			e.events.StrategyProbe(ctx, desc.Description, s.String(), true)
			h := &ResolvedHandle{
				Element:  el,
				Strategy: s,
				Selector: query,
				doc:      doc,
				epoch:    doc.Epoch(),
			}
			e.onResolved(ctx, doc, desc, h)
			e.events.Resolved(ctx, desc.Description, s.String(), time.Since(start))
			return h, nil
		}
	}

	// 直接探测失败：允许自愈时进入自愈链
	if desc.SelfHeal && e.healing != nil {
		h, _, err := e.healing.Heal(ctx, doc, desc, desc.Primary())
		if err == nil {
			e.onResolved(ctx, doc, desc, h)
			e.events.Resolved(ctx, desc.Description, h.Strategy.String(), time.Since(start))
			return h, nil
		}
		if err != ErrHealingDisabled {
			logger.Warn(ctx, "[Resolve] Healing failed for %q: %v", desc.Description, err)
		}
	}

	return nil, &ElementNotFoundError{Description: desc.Description, Attempted: attempted}
}

// onResolved 命中后的回填：描述缓存与视觉/结构签名
func (e *Executor) onResolved(ctx context.Context, doc driver.Document, desc *models.ElementDescriptor, h *ResolvedHandle) {
	if desc.Options.CacheEnabled && desc.Description != "" {
		e.caches.PutResolved(desc.Description, h)
	}
	e.captureSignatures(ctx, doc, h)
}

// captureSignatures 采集命中元素的签名，供视觉/结构自愈策略比对
// 仅对 CSS 可寻址的选择器采集；失败只记日志，不影响解析结果
func (e *Executor) captureSignatures(ctx context.Context, doc driver.Document, h *ResolvedHandle) {
	sel := h.Selector
	if sel == "" || sel == models.WildcardSelector {
		return
	}
	if len(sel) > 0 && (sel[0] == '/' || sel[0] == '(') {
		return
	}
	var sigs capturedSignatures
	if err := doc.Eval(ctx, scriptSignatureCapture, &sigs, sel); err != nil {
		logger.Debug(ctx, "[Resolve] Signature capture failed for %s: %v", sel, err)
		return
	}
	key := h.Strategy.String()
	e.caches.PutVisualSignature(key, sigs.Visual)
	e.caches.PutStructureSignature(key, sigs.Structure)
	if e.store != nil {
		if err := e.store.SaveVisualSignature(key, sigs.Visual); err != nil {
			logger.Debug(ctx, "[Resolve] Persist visual signature failed: %v", err)
		}
		if err := e.store.SaveStructureSignature(key, sigs.Structure); err != nil {
			logger.Debug(ctx, "[Resolve] Persist structure signature failed: %v", err)
		}
	}
}
