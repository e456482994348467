package resolver

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testwing/testwing/config"
	"github.com/testwing/testwing/models"
)

func newTestEngine(caches *Caches, llm LocatorSuggester) *HealingEngine {
	cfg := &config.ResolverConfig{SelfHealingEnabled: true}
	aiCfg := &config.AIConfig{Enabled: true, ConfidenceThreshold: 0.7}
	return NewHealingEngine(cfg, aiCfg, caches, nil, llm, nil)
}

func TestHealOriginalRetryFirst(t *testing.T) {
	doc := newFakeDoc()
	// 原始定位本身可命中：时序抖动场景，重试即恢复
	doc.addCSS("#login", el("Login"))

	e := newTestEngine(NewCaches(), nil)
	desc := &models.ElementDescriptor{Description: "login", CSS: "#login"}
	h, result, err := e.Heal(context.Background(), doc, desc, desc.Primary())
	require.NoError(t, err)
	assert.Equal(t, "#login", h.Selector)
	assert.Equal(t, "retry", result.StrategyName)
	// 原样命中不产生置信度
	assert.Zero(t, result.Confidence)
}

func TestHealByAlternatives(t *testing.T) {
	doc := newFakeDoc()
	doc.addCSS("#login-v2", el("Login"))

	e := newTestEngine(NewCaches(), nil)
	desc := &models.ElementDescriptor{
		Description: "login button",
		CSS:         "#login",
		AltLocators: []string{"css:#login-v2"},
	}
	h, result, err := e.Heal(context.Background(), doc, desc, desc.Primary())
	require.NoError(t, err)
	assert.Equal(t, "#login-v2", h.Selector)
	assert.Equal(t, "alternative", result.StrategyName)
	assert.Equal(t, 100.0, result.Confidence)

	// 成功的替代定位串进入描述级备选缓存
	alts := e.caches.Alternatives("login button")
	require.NotEmpty(t, alts)
	assert.Equal(t, "#login-v2", alts[0])
}

func TestHealAlternativesBypassDisabledGate(t *testing.T) {
	doc := newFakeDoc()
	doc.addCSS("#login-v2", el("Login"))

	caches := NewCaches()
	e := NewHealingEngine(&config.ResolverConfig{SelfHealingEnabled: false}, &config.AIConfig{}, caches, nil, nil, nil)
	desc := &models.ElementDescriptor{
		Description: "login button",
		CSS:         "#login",
		AltLocators: []string{"css:#login-v2"},
	}
	// 总开关关闭时备用定位串仍然生效
	h, _, err := e.Heal(context.Background(), doc, desc, desc.Primary())
	require.NoError(t, err)
	assert.Equal(t, "#login-v2", h.Selector)
}

func TestHealDisabledReturnsSentinel(t *testing.T) {
	doc := newFakeDoc()
	e := NewHealingEngine(&config.ResolverConfig{SelfHealingEnabled: false}, &config.AIConfig{}, NewCaches(), nil, nil, nil)
	desc := &models.ElementDescriptor{Description: "login", CSS: "#login"}

	_, result, err := e.Heal(context.Background(), doc, desc, desc.Primary())
	assert.ErrorIs(t, err, ErrHealingDisabled)
	assert.False(t, result.Success)
}

func TestHealByTextForms(t *testing.T) {
	doc := newFakeDoc()
	// 只有 XPath contains(text()) 这一形式能命中
	doc.addXPath("//*[contains(text(),'Sign in')]", el("Sign in"))

	e := newTestEngine(NewCaches(), nil)
	desc := &models.ElementDescriptor{Description: "login", CSS: "#gone", Text: "Sign in"}
	h, result, err := e.Heal(context.Background(), doc, desc, desc.Primary())
	require.NoError(t, err)
	assert.Equal(t, "text", result.StrategyName)
	assert.Equal(t, 90.0, result.Confidence)
	assert.Equal(t, "//*[contains(text(),'Sign in')]", h.Selector)
	assert.Equal(t, models.KindXPath, h.Strategy.Kind)
}

func TestHealTextFromRenamedID(t *testing.T) {
	doc := newFakeDoc()
	// 元素 id 从 #submit-btn 改为 #submit-button，只剩文本可寻
	doc.addCSS("#submit-button", el("Submit"))
	doc.addText("*", "Submit", el("Submit"))

	e := newTestEngine(NewCaches(), nil)
	desc := &models.ElementDescriptor{CSS: "#submit-btn", SelfHeal: true}
	h, result, err := e.Heal(context.Background(), doc, desc, desc.Primary())
	require.NoError(t, err)
	assert.Equal(t, "text", result.StrategyName)
	assert.Equal(t, 90.0, result.Confidence)
	assert.Equal(t, `text="Submit"`, h.Selector)
	assert.Equal(t, models.KindText, h.Strategy.Kind)
}

func TestHealTextFromLocatorLiteral(t *testing.T) {
	doc := newFakeDoc()
	doc.addText("*", "Buy Now", el("Buy Now"))

	e := newTestEngine(NewCaches(), nil)
	// 失效定位串里的引号片段本身就是文本线索
	desc := &models.ElementDescriptor{CSS: `button.buy:has-text("Buy Now")`, SelfHeal: true}
	h, result, err := e.Heal(context.Background(), doc, desc, desc.Primary())
	require.NoError(t, err)
	assert.Equal(t, "text", result.StrategyName)
	assert.Equal(t, `text="Buy Now"`, h.Selector)
}

func TestHealNearbyTextHintFromLocator(t *testing.T) {
	doc := newFakeDoc()
	var hints map[string]interface{}
	doc.evalFn = func(script string, out interface{}, args ...interface{}) error {
		if script == scriptNearbyScore && len(args) > 0 {
			hints, _ = args[0].(map[string]interface{})
		}
		return nil
	}

	e := newTestEngine(NewCaches(), nil)
	locator, err := e.healNearby(context.Background(), doc, &models.ElementDescriptor{}, models.ParseTaggedLocator(`css:button:has-text("Pay")`))
	require.NoError(t, err)
	assert.Equal(t, "", locator)
	require.NotNil(t, hints)
	assert.Equal(t, "Pay", hints["text"])
	assert.Equal(t, "button", hints["tag"])
}

func TestTextCandidatesOrderAndDedupe(t *testing.T) {
	e := newTestEngine(NewCaches(), nil)
	desc := &models.ElementDescriptor{Text: "Submit"}
	got := e.textCandidates(desc, models.LocatorStrategy{Kind: models.KindCSS, Value: "#submit-btn"})
	assert.Equal(t, []string{"Submit", "submit", "btn", "Btn"}, got)
}

func TestHealTextPrefersQuotedForm(t *testing.T) {
	doc := newFakeDoc()
	// text="frag" 与裸 text= 会先于其他形式探测
	doc.addText("*", "Sign in", el("Sign in"))

	e := newTestEngine(NewCaches(), nil)
	desc := &models.ElementDescriptor{Description: "login", CSS: "#gone", Text: "Sign in"}
	h, result, err := e.Heal(context.Background(), doc, desc, desc.Primary())
	require.NoError(t, err)
	assert.Equal(t, "text", result.StrategyName)
	assert.Equal(t, `text="Sign in"`, h.Selector)
}

func TestHealVisualSkipsWithoutSignature(t *testing.T) {
	doc := newFakeDoc()
	e := newTestEngine(NewCaches(), nil)

	locator, err := e.healVisual(context.Background(), doc, &models.ElementDescriptor{}, models.LocatorStrategy{Kind: models.KindCSS, Value: "#gone"})
	require.NoError(t, err)
	assert.Equal(t, "", locator)
}

func TestHealVisualUsesCachedSignature(t *testing.T) {
	caches := NewCaches()
	caches.PutVisualSignature("css:#gone", models.VisualSignature{Width: 100, Height: 40})

	doc := newFakeDoc()
	doc.evalFn = evalByScript(map[string]interface{}{
		scriptVisualScore: &scanCandidate{Selector: "#moved", Score: 72},
	})
	doc.addCSS("#moved", el("Login"))

	e := newTestEngine(caches, nil)
	desc := &models.ElementDescriptor{CSS: "#gone"}
	h, result, err := e.Heal(context.Background(), doc, desc, desc.Primary())
	require.NoError(t, err)
	assert.Equal(t, "visual", result.StrategyName)
	assert.Equal(t, 75.0, result.Confidence)
	assert.Equal(t, "#moved", h.Selector)
}

func TestHealVisualRejectsLowScore(t *testing.T) {
	caches := NewCaches()
	caches.PutVisualSignature("css:#gone", models.VisualSignature{Width: 100})
	caches.PutStructureSignature("css:#gone", models.StructureSignature{Tag: "button"})

	doc := newFakeDoc()
	// 低于视觉下限 50 但高于结构下限 20：结构策略接手
	doc.evalFn = evalByScript(map[string]interface{}{
		scriptVisualScore:    &scanCandidate{Selector: "#moved", Score: 30},
		scriptStructureScore: &scanCandidate{Selector: "#moved", Score: 30},
	})
	doc.addCSS("#moved", el("Login"))

	e := newTestEngine(caches, nil)
	desc := &models.ElementDescriptor{CSS: "#gone"}
	h, result, err := e.Heal(context.Background(), doc, desc, desc.Primary())
	require.NoError(t, err)
	assert.Equal(t, "structure", result.StrategyName)
	assert.Equal(t, 80.0, result.Confidence)
	assert.Equal(t, "#moved", h.Selector)
}

type stubSuggester struct {
	locator string
	err     error
	calls   int
}

func (s *stubSuggester) SuggestLocator(ctx context.Context, originalLocator, pageContent string, screenshot []byte) (string, error) {
	s.calls++
	return s.locator, s.err
}

func TestHealAISuggestion(t *testing.T) {
	doc := newFakeDoc()
	doc.pageContent = "<button id='login-new'>Login</button>"
	doc.addCSS("#login-new", el("Login"))

	llm := &stubSuggester{locator: "#login-new"}
	e := newTestEngine(NewCaches(), llm)
	desc := &models.ElementDescriptor{CSS: "#gone"}
	h, result, err := e.Heal(context.Background(), doc, desc, desc.Primary())
	require.NoError(t, err)
	assert.Equal(t, "ai", result.StrategyName)
	assert.Equal(t, 70.0, result.Confidence)
	assert.Equal(t, "#login-new", h.Selector)
	assert.Equal(t, 1, llm.calls)
}

func TestHealStrategyErrorContinuesChain(t *testing.T) {
	caches := NewCaches()
	caches.PutVisualSignature("css:#gone", models.VisualSignature{Width: 100})

	doc := newFakeDoc()
	// 视觉扫描报错，链不中断，AI 策略仍被尝试
	doc.evalFn = func(script string, out interface{}, args ...interface{}) error {
		return errors.New("eval failed")
	}
	doc.addCSS("#login-new", el("Login"))

	llm := &stubSuggester{locator: "#login-new"}
	e := newTestEngine(caches, llm)
	desc := &models.ElementDescriptor{CSS: "#gone"}
	h, result, err := e.Heal(context.Background(), doc, desc, desc.Primary())
	require.NoError(t, err)
	assert.Equal(t, "ai", result.StrategyName)
	assert.Equal(t, "#login-new", h.Selector)
}

func TestHealAllStrategiesFail(t *testing.T) {
	doc := newFakeDoc()
	llm := &stubSuggester{err: errors.New("service down")}
	e := newTestEngine(NewCaches(), llm)
	desc := &models.ElementDescriptor{Description: "login", CSS: "#gone"}

	_, result, err := e.Heal(context.Background(), doc, desc, desc.Primary())
	require.Error(t, err)
	assert.True(t, IsElementNotFound(err))
	assert.False(t, result.Success)

	// 失败也写入自愈历史
	records := e.caches.HealingRecords("css:#gone")
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
}

type recordingStore struct{ saved []models.HealingResult }

func (s *recordingStore) SaveHealingResult(r models.HealingResult) error {
	s.saved = append(s.saved, r)
	return nil
}

func TestHealPersistsThroughStore(t *testing.T) {
	doc := newFakeDoc()
	doc.addCSS("#login-v2", el("Login"))

	store := &recordingStore{}
	cfg := &config.ResolverConfig{SelfHealingEnabled: true}
	e := NewHealingEngine(cfg, &config.AIConfig{}, NewCaches(), nil, nil, store)
	desc := &models.ElementDescriptor{CSS: "#gone", AltLocators: []string{"css:#login-v2"}}

	_, result, err := e.Heal(context.Background(), doc, desc, desc.Primary())
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	assert.Equal(t, result.HealedLocator, store.saved[0].HealedLocator)
}
