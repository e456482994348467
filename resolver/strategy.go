package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/testwing/testwing/driver"
	"github.com/testwing/testwing/models"
)

// ResolvedHandle 绑定到某个活动元素的句柄
// 由产生它的描述符独占，导航后失效，不可跨描述符共享
type ResolvedHandle struct {
	Element  driver.Element
	Strategy models.LocatorStrategy
	Selector string // 实际命中的查询串

	doc   driver.Document
	epoch uint64
}

// Valid 判断句柄是否仍然有效（未发生导航）
func (h *ResolvedHandle) Valid() bool {
	return h.doc != nil && h.doc.Epoch() == h.epoch
}

// probeStrategy 按策略类型构造查询并探测
// 返回命中集合与实际使用的查询串；单次探测的错误由调用方决定是否忽略
func probeStrategy(ctx context.Context, doc driver.Document, s models.LocatorStrategy) (driver.ElementSet, string, error) {
	switch s.Kind {
	case models.KindID:
		sel := s.Value
		if !strings.HasPrefix(sel, "#") {
			sel = "#" + sel
		}
		set, err := doc.Query(ctx, sel)
		return set, sel, err
	case models.KindCSS:
		set, err := doc.Query(ctx, s.Value)
		return set, s.Value, err
	case models.KindName:
		sel := fmt.Sprintf("[name='%s']", s.Value)
		set, err := doc.Query(ctx, sel)
		return set, sel, err
	case models.KindXPath:
		set, err := doc.QueryXPath(ctx, s.Value)
		return set, s.Value, err
	case models.KindText:
		set, err := doc.QueryByText(ctx, "*", s.Value)
		return set, s.Value, err
	case models.KindTestID:
		set, err := doc.QueryByTestID(ctx, s.Value)
		return set, s.Value, err
	case models.KindRole:
		set, err := doc.QueryByRole(ctx, s.Value)
		return set, s.Value, err
	case models.KindPlaceholder:
		set, err := doc.QueryByPlaceholder(ctx, s.Value)
		return set, s.Value, err
	default:
		set, err := doc.Query(ctx, s.Value)
		return set, s.Value, err
	}
}

var reHasText = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9-]*)?:has-text\("([^"]*)"\)$`)

// queryLocator 按定位串形式分派查询
// 以 / 或 ( 开头按 XPath；text=、:has-text(...) 按文本查询；其余按 CSS
func queryLocator(ctx context.Context, doc driver.Document, locator string) (driver.ElementSet, error) {
	if strings.HasPrefix(locator, "/") || strings.HasPrefix(locator, "(") {
		return doc.QueryXPath(ctx, locator)
	}
	if strings.HasPrefix(locator, "text=") {
		text := strings.Trim(strings.TrimPrefix(locator, "text="), `"`)
		return doc.QueryByText(ctx, "*", text)
	}
	if m := reHasText.FindStringSubmatch(locator); m != nil {
		tag := m[1]
		if tag == "" {
			tag = "*"
		}
		return doc.QueryByText(ctx, tag, m[2])
	}
	return doc.Query(ctx, locator)
}

// classifyLocator 按 queryLocator 的分派规则标注定位串类型
func classifyLocator(locator string) models.LocatorStrategy {
	if strings.HasPrefix(locator, "/") || strings.HasPrefix(locator, "(") {
		return models.LocatorStrategy{Kind: models.KindXPath, Value: locator}
	}
	if strings.HasPrefix(locator, "text=") || reHasText.MatchString(locator) {
		return models.LocatorStrategy{Kind: models.KindText, Value: locator}
	}
	return models.LocatorStrategy{Kind: models.KindCSS, Value: locator}
}

// probeLocator 探测任意定位串，失败（含错误）一律返回 0，自愈链据此判定"未命中"
func probeLocator(ctx context.Context, doc driver.Document, locator string) int {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return 0
	}
	set, err := queryLocator(ctx, doc, locator)
	if err != nil || set == nil {
		return 0
	}
	return set.Count()
}

// bindLocator 将定位串解析为句柄（探测成功后调用）
func bindLocator(ctx context.Context, doc driver.Document, locator string, strategy models.LocatorStrategy) (*ResolvedHandle, error) {
	set, err := queryLocator(ctx, doc, locator)
	if err != nil {
		return nil, err
	}
	el, err := set.First()
	if err != nil {
		return nil, err
	}
	return &ResolvedHandle{
		Element:  el,
		Strategy: strategy,
		Selector: locator,
		doc:      doc,
		epoch:    doc.Epoch(),
	}, nil
}
