package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/testwing/testwing/config"
	"github.com/testwing/testwing/driver"
	"github.com/testwing/testwing/models"
	"github.com/testwing/testwing/pkg/logger"
)

// DescriptionMatcher AI 描述匹配的依赖面
// candidates 为 "selector :: tag :: text" 格式的候选行，返回命中下标与置信度（0-1）
type DescriptionMatcher interface {
	MatchDescription(ctx context.Context, description string, candidates []string) (int, float64, error)
}

// Facade 免描述符解析入口：自然语言描述 → 元素句柄
// 阶段顺序：描述缓存 → 短语模板 → AI 视觉匹配 → 备选历史回放
type Facade struct {
	cfg      *config.ResolverConfig
	aiCfg    *config.AIConfig
	caches   *Caches
	patterns *PatternRegistry
	matcher  DescriptionMatcher // 可为 nil
	events   Events
}

func NewFacade(cfg *config.ResolverConfig, aiCfg *config.AIConfig, caches *Caches, patterns *PatternRegistry, matcher DescriptionMatcher, events Events) *Facade {
	if events == nil {
		events = NewLogEvents()
	}
	if patterns == nil {
		patterns = NewPatternRegistry()
	}
	return &Facade{cfg: cfg, aiCfg: aiCfg, caches: caches, patterns: patterns, matcher: matcher, events: events}
}

// ResolveByDescription 按自然语言描述解析元素
// 第一个成功的阶段胜出；命中后写入描述缓存与备选历史
func (f *Facade) ResolveByDescription(ctx context.Context, doc driver.Document, description string) (*ResolvedHandle, error) {
	start := time.Now()
	e := f.events
	e.ResolveStart(ctx, description)

	// (a) 描述缓存，导航后的句柄在取出时被丢弃
	if h, ok := f.caches.GetResolved(description, doc.Epoch()); ok {
		logger.Debug(ctx, "[Describe] Cache hit for %q", description)
		return h, nil
	}

	// (b) 短语模板
	if locator, ok := f.patterns.ResolveByPatterns(ctx, doc, description); ok {
		if h, err := bindLocator(ctx, doc, locator, models.LocatorStrategy{Kind: models.KindCSS, Value: locator}); err == nil {
			f.commit(ctx, description, h, "pattern", time.Since(start))
			return h, nil
		}
	}

	// (c) AI 视觉匹配，ai.enabled 关闭时整段跳过
	if f.aiCfg != nil && f.aiCfg.Enabled {
		if h, ok := f.resolveVisually(ctx, doc, description); ok {
			f.commit(ctx, description, h, "visual", time.Since(start))
			return h, nil
		}
	}

	// (d) 备选历史回放
	for _, alt := range f.caches.Alternatives(description) {
		s := models.ParseTaggedLocator(alt)
		set, query, err := probeStrategy(ctx, doc, s)
		if err != nil || set == nil || set.Count() == 0 {
			continue
		}
		el, err := set.First()
		if err != nil {
			continue
		}
		h := &ResolvedHandle{Element: el, Strategy: s, Selector: query, doc: doc, epoch: doc.Epoch()}
		f.commit(ctx, description, h, "replay", time.Since(start))
		return h, nil
	}

	return nil, &ElementNotFoundError{
		Description: description,
		Attempted:   []string{"cache", "pattern", "visual", "replay"},
	}
}

// resolveVisually 先按结构化条件打分，无法判定时交给语言模型在候选中挑选
func (f *Facade) resolveVisually(ctx context.Context, doc driver.Document, description string) (*ResolvedHandle, bool) {
	threshold := 0.7
	if f.aiCfg.ConfidenceThreshold > 0 {
		threshold = f.aiCfg.ConfidenceThreshold
	}

	criteria := ParseCriteria(description)
	if criteria.Count() > 0 {
		if cand, ok := findMatchingElement(ctx, doc, criteria, threshold); ok {
			if h, err := bindLocator(ctx, doc, cand.Selector, models.LocatorStrategy{Kind: models.KindCSS, Value: cand.Selector}); err == nil {
				return h, true
			}
		}
	}

	if f.matcher == nil {
		return nil, false
	}

	// 条件打分未命中时让模型在可交互元素里挑
	var elems []interactiveElement
	if err := doc.Eval(ctx, scriptInteractiveScan, &elems); err != nil || len(elems) == 0 {
		return nil, false
	}
	lines := make([]string, 0, len(elems))
	for _, el := range elems {
		lines = append(lines, fmt.Sprintf("%s :: %s :: %s", el.Selector, el.Tag, el.Text))
	}
	idx, confidence, err := f.matcher.MatchDescription(ctx, description, lines)
	if err != nil {
		logger.Warn(ctx, "[Describe] AI match failed for %q: %v", description, err)
		return nil, false
	}
	if idx < 0 || idx >= len(elems) || confidence < threshold {
		return nil, false
	}
	h, err := bindLocator(ctx, doc, elems[idx].Selector, models.LocatorStrategy{Kind: models.KindCSS, Value: elems[idx].Selector})
	if err != nil {
		return nil, false
	}
	return h, true
}

// commit 命中后的回填
func (f *Facade) commit(ctx context.Context, description string, h *ResolvedHandle, stage string, elapsed time.Duration) {
	f.caches.PutResolved(description, h)
	f.caches.AddAlternative(description, h.Selector)
	f.events.Resolved(ctx, description, stage+":"+h.Selector, elapsed)
	logger.Info(ctx, "[Describe] Resolved %q via %s -> %s", description, stage, h.Selector)
}
