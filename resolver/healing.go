package resolver

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/testwing/testwing/config"
	"github.com/testwing/testwing/driver"
	"github.com/testwing/testwing/models"
	"github.com/testwing/testwing/pkg/logger"
)

// LocatorSuggester AI 自愈策略对语言模型的依赖面
type LocatorSuggester interface {
	SuggestLocator(ctx context.Context, originalLocator, pageContent string, screenshot []byte) (string, error)
}

// HealingStore 自愈历史的落盘接口，nil 时仅保留内存记录
type HealingStore interface {
	SaveHealingResult(r models.HealingResult) error
}

// 各策略命中后的固定置信度（0-100）
const (
	confidenceAlternative = 100.0
	confidenceText        = 90.0
	confidenceNearby      = 85.0
	confidenceStructure   = 80.0
	confidenceVisual      = 75.0
	confidenceAI          = 70.0
)

// 策略名，写入 HealingResult 与日志
const (
	strategyRetry       = "retry"
	strategyAlternative = "alternative"
	strategyNearby      = "nearby"
	strategyText        = "text"
	strategyVisual      = "visual"
	strategyStructure   = "structure"
	strategyAI          = "ai"
)

// 视觉/结构扫描的接受下限
const (
	minVisualScore    = 50.0
	minStructureScore = 20.0
)

// HealingEngine 自愈引擎
// 主定位失败后依次尝试：原始重试 → 备用定位串 → 近邻 → 文本 → 视觉 → 结构 → AI
// 重试与备用定位串不受总开关约束，其余策略在 SelfHealingEnabled=false 时全部跳过
type HealingEngine struct {
	cfg    *config.ResolverConfig
	aiCfg  *config.AIConfig
	caches *Caches
	events Events
	llm    LocatorSuggester // 可为 nil
	store  HealingStore     // 可为 nil
}

func NewHealingEngine(cfg *config.ResolverConfig, aiCfg *config.AIConfig, caches *Caches, events Events, llm LocatorSuggester, store HealingStore) *HealingEngine {
	if events == nil {
		events = NewLogEvents()
	}
	return &HealingEngine{cfg: cfg, aiCfg: aiCfg, caches: caches, events: events, llm: llm, store: store}
}

// healAttempt 单个策略的执行函数
// 返回命中的定位串；未命中返回空串，错误不会中断策略链
type healAttempt func(ctx context.Context, doc driver.Document, desc *models.ElementDescriptor, original models.LocatorStrategy) (string, error)

// Heal 对失败的主定位执行自愈链
// 每个候选在采纳前都重新探测确认命中；成功后记入历史与备选缓存
func (e *HealingEngine) Heal(ctx context.Context, doc driver.Document, desc *models.ElementDescriptor, original models.LocatorStrategy) (*ResolvedHandle, models.HealingResult, error) {
	start := time.Now()
	originalLocator := original.String()
	e.events.HealingStart(ctx, originalLocator)

	// 先重试一次原始定位：偶发的时序失败无需进入任何策略，置信度不适用记 0
	if set, query, err := probeStrategy(ctx, doc, original); err == nil && set != nil && set.Count() > 0 {
		if el, ferr := set.First(); ferr == nil {
			h := &ResolvedHandle{Element: el, Strategy: original, Selector: query, doc: doc, epoch: doc.Epoch()}
			return e.finish(ctx, desc, originalLocator, h, strategyRetry, 0, start)
		}
	}

	// 备用定位串其次：调用方显式声明过的等价定位，直接逐一探测
	if h, ok := e.healByAlternatives(ctx, doc, desc); ok {
		return e.finish(ctx, desc, originalLocator, h, strategyAlternative, confidenceAlternative, start)
	}

	if !e.cfg.SelfHealingEnabled {
		e.events.HealingDone(ctx, originalLocator, false, time.Since(start))
		return nil, e.failure(originalLocator, start), ErrHealingDisabled
	}

	chain := []struct {
		name       string
		confidence float64
		run        healAttempt
	}{
		{strategyNearby, confidenceNearby, e.healNearby},
		{strategyText, confidenceText, e.healByText},
		{strategyVisual, confidenceVisual, e.healVisual},
		{strategyStructure, confidenceStructure, e.healStructure},
		{strategyAI, confidenceAI, e.healAI},
	}

	for _, s := range chain {
		locator, err := s.run(ctx, doc, desc, original)
		if err != nil {
			// 单策略失败不终止链，继续尝试后续策略
			logger.Warn(ctx, "[Heal] Strategy %s failed for %s: %v", s.name, originalLocator, err)
			e.events.HealingStrategy(ctx, originalLocator, s.name, false, 0)
			continue
		}
		if locator == "" {
			e.events.HealingStrategy(ctx, originalLocator, s.name, false, 0)
			continue
		}
		// 采纳前复核
		if probeLocator(ctx, doc, locator) == 0 {
			e.events.HealingStrategy(ctx, originalLocator, s.name, false, 0)
			continue
		}
		h, err := bindLocator(ctx, doc, locator, classifyLocator(locator))
		if err != nil {
			e.events.HealingStrategy(ctx, originalLocator, s.name, false, 0)
			continue
		}
		e.events.HealingStrategy(ctx, originalLocator, s.name, true, s.confidence)
		return e.finish(ctx, desc, originalLocator, h, s.name, s.confidence, start)
	}

	e.events.HealingDone(ctx, originalLocator, false, time.Since(start))
	result := e.failure(originalLocator, start)
	e.record(ctx, result)
	return nil, result, &ElementNotFoundError{Description: desc.Description, Attempted: []string{originalLocator}}
}

// finish 记录成功结果并回填备选缓存
func (e *HealingEngine) finish(ctx context.Context, desc *models.ElementDescriptor, originalLocator string, h *ResolvedHandle, strategy string, confidence float64, start time.Time) (*ResolvedHandle, models.HealingResult, error) {
	result := models.HealingResult{
		Success:         true,
		OriginalLocator: originalLocator,
		HealedLocator:   h.Selector,
		StrategyName:    strategy,
		Confidence:      confidence,
		DurationMs:      time.Since(start).Milliseconds(),
		Timestamp:       time.Now(),
	}
	e.record(ctx, result)
	if desc.Description != "" {
		e.caches.AddAlternative(desc.Description, h.Selector)
	}
	e.events.HealingDone(ctx, originalLocator, true, time.Since(start))
	logger.Info(ctx, "[Heal] Healed %s -> %s via %s (confidence %.0f)", originalLocator, h.Selector, strategy, confidence)
	return h, result, nil
}

func (e *HealingEngine) failure(originalLocator string, start time.Time) models.HealingResult {
	return models.HealingResult{
		Success:         false,
		OriginalLocator: originalLocator,
		DurationMs:      time.Since(start).Milliseconds(),
		Timestamp:       time.Now(),
	}
}

// record 写入内存历史，配置了存储时同步落盘
func (e *HealingEngine) record(ctx context.Context, r models.HealingResult) {
	e.caches.AddHealingRecord(r)
	if e.store != nil {
		if err := e.store.SaveHealingResult(r); err != nil {
			logger.Warn(ctx, "[Heal] Persist healing result failed: %v", err)
		}
	}
}

// healByAlternatives 逐一探测描述符声明的备用定位串与历史上成功过的备选
func (e *HealingEngine) healByAlternatives(ctx context.Context, doc driver.Document, desc *models.ElementDescriptor) (*ResolvedHandle, bool) {
	candidates := make([]string, 0, len(desc.AltLocators)+maxAlternativeHistory)
	candidates = append(candidates, desc.AltLocators...)
	if desc.Description != "" {
		candidates = append(candidates, e.caches.Alternatives(desc.Description)...)
	}

	for _, raw := range candidates {
		s := models.ParseTaggedLocator(raw)
		set, query, err := probeStrategy(ctx, doc, s)
		if err != nil || set == nil || set.Count() == 0 {
			continue
		}
		el, err := set.First()
		if err != nil {
			continue
		}
		logger.Info(ctx, "[Heal] Alternative locator hit: %s", query)
		return &ResolvedHandle{
			Element:  el,
			Strategy: s,
			Selector: query,
			doc:      doc,
			epoch:    doc.Epoch(),
		}, true
	}
	return nil, false
}

var (
	reIDSel    = regexp.MustCompile(`#([A-Za-z][\w-]*)`)
	reClassSel = regexp.MustCompile(`\.([A-Za-z][\w-]*)`)
	reTagSel   = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9]*)`)
	reSelWord  = regexp.MustCompile(`[A-Za-z]{3,}`)
)

// locatorLiteralText 定位串里显式书写的文本字面量，没有则为空
// 覆盖 text: 策略、text= 前缀、:has-text(...) 与 XPath contains(...) 里的引号片段
func locatorLiteralText(s models.LocatorStrategy) string {
	if s.Kind == models.KindText {
		return strings.Trim(s.Value, `"'`)
	}
	if v, ok := strings.CutPrefix(s.Value, "text="); ok {
		return strings.Trim(v, `"'`)
	}
	if m := reQuoted.FindStringSubmatch(s.Value); m != nil {
		return m[1]
	}
	return ""
}

// healNearby 从失效定位串中拆出 id 片段、类名、标签作为线索整页打分
func (e *HealingEngine) healNearby(ctx context.Context, doc driver.Document, desc *models.ElementDescriptor, original models.LocatorStrategy) (string, error) {
	hints := map[string]interface{}{}

	sel := original.Value
	if m := reIDSel.FindStringSubmatch(sel); m != nil {
		hints["idFragment"] = m[1]
	} else if original.Kind == models.KindID {
		hints["idFragment"] = original.Value
	}
	if ms := reClassSel.FindAllStringSubmatch(sel, -1); len(ms) > 0 {
		classes := make([]string, 0, len(ms))
		for _, m := range ms {
			classes = append(classes, m[1])
		}
		hints["classes"] = classes
	}
	if m := reTagSel.FindStringSubmatch(sel); m != nil && original.Kind == models.KindCSS {
		hints["tag"] = m[1]
	}
	if text := e.textHint(desc); text != "" {
		hints["text"] = text
	} else if lit := locatorLiteralText(original); lit != "" {
		hints["text"] = lit
	}
	if len(hints) == 0 {
		return "", nil
	}

	var cand *scanCandidate
	if err := doc.Eval(ctx, scriptNearbyScore, &cand, hints); err != nil {
		return "", err
	}
	if cand == nil || cand.Score <= 0 {
		return "", nil
	}
	return cand.Selector, nil
}

// healByText 逐个文本线索依次尝试多种文本定位形式
func (e *HealingEngine) healByText(ctx context.Context, doc driver.Document, desc *models.ElementDescriptor, original models.LocatorStrategy) (string, error) {
	for _, frag := range e.textCandidates(desc, original) {
		forms := []string{
			`text="` + frag + `"`,
			"text=" + frag,
			`:has-text("` + frag + `")`,
			"//*[contains(text(),'" + frag + "')]",
			"//*[contains(.,'" + frag + "')]",
		}
		for _, form := range forms {
			if probeLocator(ctx, doc, form) > 0 {
				return form, nil
			}
		}
	}
	return "", nil
}

// textCandidates 文本自愈的线索列表，按可信度排序并去重
// 定位串字面文本 → 描述符线索 → id/类名拆词（如 #submit-btn 拆出 submit，常对应文本 "Submit"）
func (e *HealingEngine) textCandidates(desc *models.ElementDescriptor, original models.LocatorStrategy) []string {
	out := make([]string, 0, 4)
	seen := make(map[string]bool)
	add := func(f string) {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			return
		}
		seen[f] = true
		out = append(out, f)
	}

	add(locatorLiteralText(original))
	for _, m := range reQuoted.FindAllStringSubmatch(original.Value, -1) {
		add(m[1])
	}
	add(e.textHint(desc))

	fragments := make([]string, 0, 2)
	if original.Kind == models.KindID {
		fragments = append(fragments, original.Value)
	}
	for _, m := range reIDSel.FindAllStringSubmatch(original.Value, -1) {
		fragments = append(fragments, m[1])
	}
	for _, m := range reClassSel.FindAllStringSubmatch(original.Value, -1) {
		fragments = append(fragments, m[1])
	}
	for _, frag := range fragments {
		for _, w := range reSelWord.FindAllString(frag, -1) {
			add(w)
			add(strings.ToUpper(w[:1]) + w[1:])
		}
	}
	return out
}

// healVisual 用缓存的视觉签名扫描，无签名时跳过
func (e *HealingEngine) healVisual(ctx context.Context, doc driver.Document, _ *models.ElementDescriptor, original models.LocatorStrategy) (string, error) {
	sig, ok := e.caches.VisualSignature(original.String())
	if !ok {
		return "", nil
	}
	var cand *scanCandidate
	if err := doc.Eval(ctx, scriptVisualScore, &cand, sig); err != nil {
		return "", err
	}
	if cand == nil || cand.Score < minVisualScore {
		return "", nil
	}
	return cand.Selector, nil
}

// healStructure 用缓存的结构签名扫描，无签名时跳过
func (e *HealingEngine) healStructure(ctx context.Context, doc driver.Document, _ *models.ElementDescriptor, original models.LocatorStrategy) (string, error) {
	sig, ok := e.caches.StructureSignature(original.String())
	if !ok {
		return "", nil
	}
	var cand *scanCandidate
	if err := doc.Eval(ctx, scriptStructureScore, &cand, sig); err != nil {
		return "", err
	}
	if cand == nil || cand.Score <= minStructureScore {
		return "", nil
	}
	return cand.Selector, nil
}

// healAI 把页面内容与截图交给语言模型推荐新定位串
func (e *HealingEngine) healAI(ctx context.Context, doc driver.Document, _ *models.ElementDescriptor, original models.LocatorStrategy) (string, error) {
	if e.llm == nil || e.aiCfg == nil || !e.aiCfg.Enabled {
		return "", nil
	}
	content, err := doc.PageContent(ctx)
	if err != nil {
		return "", err
	}
	// 截图失败不阻断，模型仅凭页面内容也能给出建议
	shot, err := doc.Screenshot(ctx)
	if err != nil {
		logger.Warn(ctx, "[Heal] Screenshot for AI healing failed: %v", err)
		shot = nil
	}
	locator, err := e.llm.SuggestLocator(ctx, original.String(), content, shot)
	if err != nil {
		return "", &ExternalServiceError{Service: "llm", Err: err}
	}
	return strings.TrimSpace(locator), nil
}

// textHint 自愈用的文本线索：显式 Text 优先，其次描述里的引号文本，最后整个描述
func (e *HealingEngine) textHint(desc *models.ElementDescriptor) string {
	if desc.Text != "" {
		return desc.Text
	}
	if m := reQuoted.FindStringSubmatch(desc.Description); m != nil {
		return m[1]
	}
	return strings.TrimSpace(desc.Description)
}
