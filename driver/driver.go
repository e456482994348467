// Package driver 定义解析引擎对浏览器页面的最小依赖面
// 引擎只通过 Document 接口访问活动文档，方便在测试中替换为假实现
package driver

import "context"

// Element 已定位到的单个元素句柄
type Element interface {
	Text() (string, error)
	Attribute(name string) (string, error)
	Visible() (bool, error)
	ScrollIntoView() error
	Screenshot() ([]byte, error)
}

// ElementSet 一次查询命中的元素集合
type ElementSet interface {
	Count() int
	First() (Element, error)
}

// Document 活动文档驱动
// 查询失败（非法选择器、frame 脱离等）返回空集合或错误，由调用方决定是否忽略
type Document interface {
	Query(ctx context.Context, selector string) (ElementSet, error)
	QueryXPath(ctx context.Context, expr string) (ElementSet, error)
	QueryByText(ctx context.Context, tag, text string) (ElementSet, error)
	QueryByTestID(ctx context.Context, testID string) (ElementSet, error)
	QueryByRole(ctx context.Context, role string) (ElementSet, error)
	QueryByPlaceholder(ctx context.Context, text string) (ElementSet, error)

	// Eval 调用固定命名的页内扫描脚本，结果反序列化到 out
	Eval(ctx context.Context, script string, out interface{}, args ...interface{}) error

	Screenshot(ctx context.Context) ([]byte, error)
	PageContent(ctx context.Context) (string, error)

	// Epoch 导航/刷新后递增，用于判定已解析句柄是否失效
	Epoch() uint64
}
