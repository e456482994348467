package resolver

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testwing/testwing/config"
)

func newTestFacade(caches *Caches, aiEnabled bool, matcher DescriptionMatcher) *Facade {
	cfg := &config.ResolverConfig{SelfHealingEnabled: true}
	aiCfg := &config.AIConfig{Enabled: aiEnabled, ConfidenceThreshold: 0.7}
	return NewFacade(cfg, aiCfg, caches, NewPatternRegistry(), matcher, nil)
}

func TestDescribeResolvesByPattern(t *testing.T) {
	doc := newFakeDoc()
	doc.addText("button", "Login", el("Login"))

	f := newTestFacade(NewCaches(), false, nil)
	h, err := f.ResolveByDescription(context.Background(), doc, "Login button")
	require.NoError(t, err)
	assert.Equal(t, `button:has-text("Login")`, h.Selector)

	// 命中后写入描述缓存与备选历史
	_, ok := f.caches.GetResolved("Login button", doc.Epoch())
	assert.True(t, ok)
	assert.Equal(t, []string{`button:has-text("Login")`}, f.caches.Alternatives("Login button"))
}

func TestDescribeCacheFirst(t *testing.T) {
	doc := newFakeDoc()
	doc.addText("button", "Login", el("Login"))

	f := newTestFacade(NewCaches(), false, nil)
	_, err := f.ResolveByDescription(context.Background(), doc, "Login button")
	require.NoError(t, err)

	before := len(doc.queries)
	_, err = f.ResolveByDescription(context.Background(), doc, "Login button")
	require.NoError(t, err)
	assert.Equal(t, before, len(doc.queries))
}

func TestDescribeReplaysAlternatives(t *testing.T) {
	doc := newFakeDoc()
	doc.addCSS("#login-v2", el("Login"))

	caches := NewCaches()
	// 模式与 AI 都派不上用场，历史备选回放兜底
	caches.AddAlternative("登录按钮", "css:#login-v2")

	f := newTestFacade(caches, false, nil)
	h, err := f.ResolveByDescription(context.Background(), doc, "登录按钮")
	require.NoError(t, err)
	assert.Equal(t, "#login-v2", h.Selector)
}

func TestDescribeAIGatedOff(t *testing.T) {
	doc := newFakeDoc()
	doc.evalFn = evalByScript(map[string]interface{}{
		scriptInteractiveScan: []interactiveElement{
			{Selector: "#buy", Tag: "button", Text: "Buy Now",
				Background: "rgb(220,30,40)",
				CenterX:    500, CenterY: 900, ViewportWidth: 1000, ViewportHeight: 1000},
		},
	})
	doc.addCSS("#buy", el("Buy Now"))

	// ai.enabled=false 时视觉阶段整体跳过
	f := newTestFacade(NewCaches(), false, nil)
	_, err := f.ResolveByDescription(context.Background(), doc, `red "Buy Now" at the bottom`)
	require.Error(t, err)
	assert.True(t, IsElementNotFound(err))

	// 开启后按条件打分命中
	f = newTestFacade(NewCaches(), true, nil)
	h, err := f.ResolveByDescription(context.Background(), doc, `red "Buy Now" at the bottom`)
	require.NoError(t, err)
	assert.Equal(t, "#buy", h.Selector)
}

type stubMatcher struct {
	idx        int
	confidence float64
	err        error
	calls      int
}

func (m *stubMatcher) MatchDescription(ctx context.Context, description string, candidates []string) (int, float64, error) {
	m.calls++
	return m.idx, m.confidence, m.err
}

func TestDescribeAIMatcherFallback(t *testing.T) {
	doc := newFakeDoc()
	doc.evalFn = evalByScript(map[string]interface{}{
		scriptInteractiveScan: []interactiveElement{
			{Selector: "#first", Tag: "button", Text: "First"},
			{Selector: "#second", Tag: "button", Text: "Second"},
		},
	})
	doc.addCSS("#second", el("Second"))

	matcher := &stubMatcher{idx: 1, confidence: 0.9}
	f := newTestFacade(NewCaches(), true, matcher)
	// 描述无可解析条件，条件打分缺席，模型在候选里挑
	h, err := f.ResolveByDescription(context.Background(), doc, "the one after the first")
	require.NoError(t, err)
	assert.Equal(t, "#second", h.Selector)
	assert.Equal(t, 1, matcher.calls)
}

func TestDescribeAIMatcherLowConfidenceRejected(t *testing.T) {
	doc := newFakeDoc()
	doc.evalFn = evalByScript(map[string]interface{}{
		scriptInteractiveScan: []interactiveElement{
			{Selector: "#first", Tag: "button", Text: "First"},
		},
	})
	doc.addCSS("#first", el("First"))

	matcher := &stubMatcher{idx: 0, confidence: 0.4}
	f := newTestFacade(NewCaches(), true, matcher)
	_, err := f.ResolveByDescription(context.Background(), doc, "the one after the first")
	require.Error(t, err)
	assert.True(t, IsElementNotFound(err))
}

func TestDescribeAIMatcherErrorFallsToReplay(t *testing.T) {
	doc := newFakeDoc()
	doc.evalFn = evalByScript(map[string]interface{}{
		scriptInteractiveScan: []interactiveElement{
			{Selector: "#first", Tag: "button", Text: "First"},
		},
	})
	doc.addCSS("#replayed", el("First"))

	caches := NewCaches()
	caches.AddAlternative("the one after the first", "css:#replayed")

	matcher := &stubMatcher{err: errors.New("service down")}
	f := newTestFacade(caches, true, matcher)
	h, err := f.ResolveByDescription(context.Background(), doc, "the one after the first")
	require.NoError(t, err)
	assert.Equal(t, "#replayed", h.Selector)
}
