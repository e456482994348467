package driver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
	"github.com/testwing/testwing/pkg/logger"
)

// PageProvider 返回当前活动页面，页面可能随导航变化
type PageProvider func() *rod.Page

// RodDocument 基于 go-rod 的 Document 实现
// 每次查询都从 provider 取当前活动页面，避免持有失效的页面引用
type RodDocument struct {
	provider PageProvider
	timeout  time.Duration

	mu      sync.Mutex
	lastURL string
	epoch   atomic.Uint64
}

func NewRodDocument(provider PageProvider, probeTimeout time.Duration) *RodDocument {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &RodDocument{provider: provider, timeout: probeTimeout}
}

// page 获取活动页面并检测导航（URL 变化即视为新纪元）
func (d *RodDocument) page(ctx context.Context) (*rod.Page, error) {
	p := d.provider()
	if p == nil {
		return nil, errors.New("no active page")
	}

	info, err := p.Info()
	if err == nil {
		d.mu.Lock()
		if d.lastURL != "" && d.lastURL != info.URL {
			d.epoch.Add(1)
			logger.Debug(ctx, "[RodDocument] Navigation detected: %s -> %s (epoch %d)", d.lastURL, info.URL, d.epoch.Load())
		}
		d.lastURL = info.URL
		d.mu.Unlock()
	}
	return p, nil
}

func (d *RodDocument) Epoch() uint64 {
	return d.epoch.Load()
}

// rodElement 包装 rod.Element
type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text() (string, error) { return e.el.Text() }

func (e *rodElement) Attribute(name string) (string, error) {
	attr, err := e.el.Attribute(name)
	if err != nil {
		return "", err
	}
	if attr == nil {
		return "", nil
	}
	return *attr, nil
}

func (e *rodElement) Visible() (bool, error) { return e.el.Visible() }

func (e *rodElement) ScrollIntoView() error { return e.el.ScrollIntoView() }

func (e *rodElement) Screenshot() ([]byte, error) {
	return e.el.Screenshot(proto.PageCaptureScreenshotFormatPng, 100)
}

// Rod 返回底层 rod 元素，供执行点击/输入等操作的上层使用
func (e *rodElement) Rod() *rod.Element { return e.el }

type rodElementSet struct {
	elems rod.Elements
}

func (s *rodElementSet) Count() int { return len(s.elems) }

func (s *rodElementSet) First() (Element, error) {
	if len(s.elems) == 0 {
		return nil, errors.New("element set is empty")
	}
	return &rodElement{el: s.elems[0]}, nil
}

var emptySet = &rodElementSet{}

func (d *RodDocument) Query(ctx context.Context, selector string) (ElementSet, error) {
	p, err := d.page(ctx)
	if err != nil {
		return emptySet, err
	}
	elems, err := p.Context(ctx).Timeout(d.timeout).Elements(selector)
	if err != nil {
		// 非法选择器等按"未命中"处理，由上层决定是否换下一个策略
		logger.Debug(ctx, "[RodDocument] Query failed for %q: %v", selector, err)
		return emptySet, nil
	}
	return &rodElementSet{elems: elems}, nil
}

func (d *RodDocument) QueryXPath(ctx context.Context, expr string) (ElementSet, error) {
	p, err := d.page(ctx)
	if err != nil {
		return emptySet, err
	}
	elems, err := p.Context(ctx).Timeout(d.timeout).ElementsX(expr)
	if err != nil {
		logger.Debug(ctx, "[RodDocument] QueryXPath failed for %q: %v", expr, err)
		return emptySet, nil
	}
	return &rodElementSet{elems: elems}, nil
}

func (d *RodDocument) QueryByText(ctx context.Context, tag, text string) (ElementSet, error) {
	if tag == "" {
		tag = "*"
	}
	expr := fmt.Sprintf("//%s[contains(normalize-space(.), %s)]", tag, xpathLiteral(text))
	return d.QueryXPath(ctx, expr)
}

func (d *RodDocument) QueryByTestID(ctx context.Context, testID string) (ElementSet, error) {
	return d.Query(ctx, fmt.Sprintf("[data-testid='%s']", testID))
}

func (d *RodDocument) QueryByRole(ctx context.Context, role string) (ElementSet, error) {
	return d.Query(ctx, fmt.Sprintf("[role='%s']", role))
}

func (d *RodDocument) QueryByPlaceholder(ctx context.Context, text string) (ElementSet, error) {
	return d.Query(ctx, fmt.Sprintf("[placeholder*='%s']", text))
}

func (d *RodDocument) Eval(ctx context.Context, script string, out interface{}, args ...interface{}) error {
	p, err := d.page(ctx)
	if err != nil {
		return err
	}
	res, err := p.Context(ctx).Timeout(d.timeout).Eval(script, args...)
	if err != nil {
		return errors.Wrap(err, "eval in page")
	}
	if out == nil {
		return nil
	}
	if err := res.Value.Unmarshal(out); err != nil {
		return errors.Wrap(err, "unmarshal eval result")
	}
	return nil
}

func (d *RodDocument) Screenshot(ctx context.Context) ([]byte, error) {
	p, err := d.page(ctx)
	if err != nil {
		return nil, err
	}
	return p.Context(ctx).Timeout(d.timeout).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (d *RodDocument) PageContent(ctx context.Context) (string, error) {
	p, err := d.page(ctx)
	if err != nil {
		return "", err
	}
	return p.Context(ctx).Timeout(d.timeout).HTML()
}

// xpathLiteral 把任意字符串安全地嵌入 XPath 字面量
// 同时包含单双引号时用 concat 拼接
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	var b strings.Builder
	b.WriteString("concat(")
	for i, part := range parts {
		if i > 0 {
			b.WriteString(`, "'", `)
		}
		b.WriteString("'" + part + "'")
	}
	b.WriteString(")")
	return b.String()
}
