package resolver

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSelector(t *testing.T) {
	r := NewPatternRegistry()

	cases := []struct {
		description string
		selector    string
	}{
		{"Login button", `button:has-text("Login")`},
		{"button Save", `button:has-text("Save")`},
		{"click Submit Order", `button:has-text("Submit Order")`},
		{"submit", `button[type='submit']`},
		{"Email input", `input[placeholder*='Email']`},
		{"Username field", `input[placeholder*='Username']`},
		{"search box", `input[type='search']`},
		{"Help link", `a:has-text("Help")`},
		{"go to Settings", `a:has-text("Settings")`},
		{"Country dropdown", `select[aria-label*='Country']`},
		{"Terms checkbox", `input[type='checkbox'][aria-label*='Terms']`},
		{"Express radio button", `input[type='radio'][aria-label*='Express']`},
	}
	for _, c := range cases {
		sel, ok := r.BuildSelector(c.description)
		require.True(t, ok, "description=%q", c.description)
		assert.Equal(t, c.selector, sel, "description=%q", c.description)
	}

	_, ok := r.BuildSelector("something entirely unmatched")
	assert.False(t, ok)
}

func TestResolveByPatternsRequiresPageHit(t *testing.T) {
	r := NewPatternRegistry()
	doc := newFakeDoc()

	// 模板命中但页面上不存在
	_, ok := r.ResolveByPatterns(context.Background(), doc, "Login button")
	assert.False(t, ok)

	// 页面上存在后命中
	doc.addText("button", "Login", el("Login"))
	sel, ok := r.ResolveByPatterns(context.Background(), doc, "Login button")
	require.True(t, ok)
	assert.Equal(t, `button:has-text("Login")`, sel)
}

func TestRegisterCustomCategory(t *testing.T) {
	r := NewPatternRegistry()
	r.Register("tab",
		PatternEntry{Pattern: regexp.MustCompile(`(?i)^(.*)\s+tab$`), Template: `[role='tab']:has-text("{0}")`, Priority: 1},
	)

	sel, ok := r.BuildSelector("History tab")
	require.True(t, ok)
	assert.Equal(t, `[role='tab']:has-text("History")`, sel)

	// 内建类别仍然优先于后注册的类别
	sel, ok = r.BuildSelector("History button")
	require.True(t, ok)
	assert.Equal(t, `button:has-text("History")`, sel)
}
