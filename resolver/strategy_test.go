package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testwing/testwing/models"
)

func TestProbeStrategyQueryBuilding(t *testing.T) {
	ctx := context.Background()
	doc := newFakeDoc()

	cases := []struct {
		strategy models.LocatorStrategy
		query    string
	}{
		{models.LocatorStrategy{Kind: models.KindID, Value: "login"}, "css:#login"},
		{models.LocatorStrategy{Kind: models.KindID, Value: "#login"}, "css:#login"},
		{models.LocatorStrategy{Kind: models.KindCSS, Value: ".btn"}, "css:.btn"},
		{models.LocatorStrategy{Kind: models.KindName, Value: "email"}, "css:[name='email']"},
		{models.LocatorStrategy{Kind: models.KindXPath, Value: "//a[1]"}, "xpath://a[1]"},
		{models.LocatorStrategy{Kind: models.KindText, Value: "Sign in"}, "text:*|Sign in"},
		{models.LocatorStrategy{Kind: models.KindTestID, Value: "submit"}, "testid:submit"},
		{models.LocatorStrategy{Kind: models.KindRole, Value: "button"}, "role:button"},
		{models.LocatorStrategy{Kind: models.KindPlaceholder, Value: "Search"}, "placeholder:Search"},
	}
	for _, c := range cases {
		doc.queries = nil
		_, _, err := probeStrategy(ctx, doc, c.strategy)
		require.NoError(t, err)
		require.Len(t, doc.queries, 1)
		assert.Equal(t, c.query, doc.queries[0], "strategy=%v", c.strategy)
	}
}

func TestQueryLocatorDispatch(t *testing.T) {
	ctx := context.Background()
	doc := newFakeDoc()

	cases := []struct {
		locator string
		query   string
	}{
		{"//button[@id='x']", "xpath://button[@id='x']"},
		{"(//a)[2]", "xpath:(//a)[2]"},
		{`text="Sign in"`, "text:*|Sign in"},
		{"text=Sign in", "text:*|Sign in"},
		{`:has-text("Save")`, "text:*|Save"},
		{`button:has-text("Save")`, "text:button|Save"},
		{"#login", "css:#login"},
		{"div > .card", "css:div > .card"},
	}
	for _, c := range cases {
		doc.queries = nil
		_, err := queryLocator(ctx, doc, c.locator)
		require.NoError(t, err)
		require.Len(t, doc.queries, 1)
		assert.Equal(t, c.query, doc.queries[0], "locator=%q", c.locator)
	}
}

func TestProbeLocator(t *testing.T) {
	ctx := context.Background()
	doc := newFakeDoc()
	doc.addCSS("#login", el("Login"))

	assert.Equal(t, 1, probeLocator(ctx, doc, "#login"))
	assert.Equal(t, 0, probeLocator(ctx, doc, "#missing"))
	assert.Equal(t, 0, probeLocator(ctx, doc, "   "))
}

func TestBindLocatorAndHandleValidity(t *testing.T) {
	ctx := context.Background()
	doc := newFakeDoc()
	doc.addCSS("#login", el("Login"))

	h, err := bindLocator(ctx, doc, "#login", models.LocatorStrategy{Kind: models.KindCSS, Value: "#login"})
	require.NoError(t, err)
	assert.Equal(t, "#login", h.Selector)
	assert.True(t, h.Valid())

	// 导航后句柄失效
	doc.epoch++
	assert.False(t, h.Valid())

	// 空集合绑定失败
	_, err = bindLocator(ctx, doc, "#missing", models.LocatorStrategy{Kind: models.KindCSS, Value: "#missing"})
	assert.Error(t, err)
}

func TestClassifyLocator(t *testing.T) {
	cases := []struct {
		locator string
		kind    models.LocatorKind
	}{
		{"//*[contains(text(),'Sign in')]", models.KindXPath},
		{"(//button)[1]", models.KindXPath},
		{`text="Submit"`, models.KindText},
		{"text=Submit", models.KindText},
		{`button:has-text("Buy")`, models.KindText},
		{"#login", models.KindCSS},
		{"button.primary", models.KindCSS},
	}
	for _, c := range cases {
		s := classifyLocator(c.locator)
		assert.Equal(t, c.kind, s.Kind, c.locator)
		assert.Equal(t, c.locator, s.Value)
	}
}
