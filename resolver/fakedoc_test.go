package resolver

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/testwing/testwing/driver"
)

// fakeElement / fakeDoc 测试用的内存文档实现
// 查询按预注册的键返回，Eval 通过 JSON 往返模拟页内脚本的出参

type fakeElement struct {
	text    string
	visible bool
	attrs   map[string]string
}

func (e *fakeElement) Text() (string, error) { return e.text, nil }

func (e *fakeElement) Attribute(name string) (string, error) { return e.attrs[name], nil }

func (e *fakeElement) Visible() (bool, error) { return e.visible, nil }

func (e *fakeElement) ScrollIntoView() error { return nil }

func (e *fakeElement) Screenshot() ([]byte, error) { return []byte("png"), nil }

type fakeSet struct{ elems []*fakeElement }

func (s *fakeSet) Count() int { return len(s.elems) }

func (s *fakeSet) First() (driver.Element, error) {
	if len(s.elems) == 0 {
		return nil, errors.New("empty set")
	}
	return s.elems[0], nil
}

type fakeDoc struct {
	epoch uint64

	css         map[string]*fakeSet
	xpath       map[string]*fakeSet
	byText      map[string]*fakeSet // key: tag|text
	byTestID    map[string]*fakeSet
	byRole      map[string]*fakeSet
	byPlacehold map[string]*fakeSet

	evalFn      func(script string, out interface{}, args ...interface{}) error
	pageContent string

	queries []string // 记录查询分派，便于断言
}

func newFakeDoc() *fakeDoc {
	return &fakeDoc{
		css:         make(map[string]*fakeSet),
		xpath:       make(map[string]*fakeSet),
		byText:      make(map[string]*fakeSet),
		byTestID:    make(map[string]*fakeSet),
		byRole:      make(map[string]*fakeSet),
		byPlacehold: make(map[string]*fakeSet),
	}
}

func el(text string) *fakeElement {
	return &fakeElement{text: text, visible: true, attrs: map[string]string{}}
}

func (d *fakeDoc) addCSS(selector string, elems ...*fakeElement) {
	d.css[selector] = &fakeSet{elems: elems}
}

func (d *fakeDoc) addXPath(expr string, elems ...*fakeElement) {
	d.xpath[expr] = &fakeSet{elems: elems}
}

func (d *fakeDoc) addText(tag, text string, elems ...*fakeElement) {
	d.byText[tag+"|"+text] = &fakeSet{elems: elems}
}

func (d *fakeDoc) lookup(m map[string]*fakeSet, key string) (driver.ElementSet, error) {
	if set, ok := m[key]; ok {
		return set, nil
	}
	return &fakeSet{}, nil
}

func (d *fakeDoc) Query(ctx context.Context, selector string) (driver.ElementSet, error) {
	d.queries = append(d.queries, "css:"+selector)
	return d.lookup(d.css, selector)
}

func (d *fakeDoc) QueryXPath(ctx context.Context, expr string) (driver.ElementSet, error) {
	d.queries = append(d.queries, "xpath:"+expr)
	return d.lookup(d.xpath, expr)
}

func (d *fakeDoc) QueryByText(ctx context.Context, tag, text string) (driver.ElementSet, error) {
	d.queries = append(d.queries, "text:"+tag+"|"+text)
	return d.lookup(d.byText, tag+"|"+text)
}

func (d *fakeDoc) QueryByTestID(ctx context.Context, testID string) (driver.ElementSet, error) {
	d.queries = append(d.queries, "testid:"+testID)
	return d.lookup(d.byTestID, testID)
}

func (d *fakeDoc) QueryByRole(ctx context.Context, role string) (driver.ElementSet, error) {
	d.queries = append(d.queries, "role:"+role)
	return d.lookup(d.byRole, role)
}

func (d *fakeDoc) QueryByPlaceholder(ctx context.Context, text string) (driver.ElementSet, error) {
	d.queries = append(d.queries, "placeholder:"+text)
	return d.lookup(d.byPlacehold, text)
}

func (d *fakeDoc) Eval(ctx context.Context, script string, out interface{}, args ...interface{}) error {
	if d.evalFn != nil {
		return d.evalFn(script, out, args...)
	}
	return nil
}

func (d *fakeDoc) Screenshot(ctx context.Context) ([]byte, error) { return []byte("png"), nil }

func (d *fakeDoc) PageContent(ctx context.Context) (string, error) { return d.pageContent, nil }

func (d *fakeDoc) Epoch() uint64 { return d.epoch }

// evalJSON 构造把固定值 JSON 往返写入出参的 Eval 实现
func evalJSON(v interface{}) func(string, interface{}, ...interface{}) error {
	return func(_ string, out interface{}, _ ...interface{}) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, out)
	}
}

// evalByScript 按脚本区分出参，未注册的脚本留空
func evalByScript(values map[string]interface{}) func(string, interface{}, ...interface{}) error {
	return func(script string, out interface{}, _ ...interface{}) error {
		v, ok := values[script]
		if !ok {
			return nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, out)
	}
}
