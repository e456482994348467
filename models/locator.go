package models

import (
	"fmt"
	"strings"
	"time"
)

// LocatorKind 定位策略类型
type LocatorKind string

const (
	KindID          LocatorKind = "id"
	KindCSS         LocatorKind = "css"
	KindXPath       LocatorKind = "xpath"
	KindText        LocatorKind = "text"
	KindTestID      LocatorKind = "testId"
	KindRole        LocatorKind = "role"
	KindName        LocatorKind = "name"
	KindPlaceholder LocatorKind = "placeholder"
)

// LocatorStrategy 单个定位策略（kind + value），构造后不可变
type LocatorStrategy struct {
	Kind     LocatorKind `json:"kind"`
	Value    string      `json:"value"`
	Priority int         `json:"priority,omitempty"`
}

// NewLocatorStrategy 创建定位策略，value 不允许为空
func NewLocatorStrategy(kind LocatorKind, value string) (LocatorStrategy, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return LocatorStrategy{}, fmt.Errorf("locator value is empty for kind %s", kind)
	}
	return LocatorStrategy{Kind: kind, Value: value}, nil
}

// String 返回 "kind:value" 形式，用于日志和缓存键
func (s LocatorStrategy) String() string {
	return string(s.Kind) + ":" + s.Value
}

// ParseTaggedLocator 解析 "kind:value" 前缀约定的定位字符串
// 未识别的前缀按 css 处理（与裸选择器一致）
func ParseTaggedLocator(raw string) LocatorStrategy {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, ":"); idx > 0 {
		prefix := strings.ToLower(strings.TrimSpace(raw[:idx]))
		rest := strings.TrimSpace(raw[idx+1:])
		if rest != "" {
			switch prefix {
			case "id":
				return LocatorStrategy{Kind: KindID, Value: rest}
			case "css":
				return LocatorStrategy{Kind: KindCSS, Value: rest}
			case "xpath":
				return LocatorStrategy{Kind: KindXPath, Value: rest}
			case "text":
				return LocatorStrategy{Kind: KindText, Value: rest}
			case "testid":
				return LocatorStrategy{Kind: KindTestID, Value: rest}
			case "role":
				return LocatorStrategy{Kind: KindRole, Value: rest}
			case "name":
				return LocatorStrategy{Kind: KindName, Value: rest}
			case "placeholder":
				return LocatorStrategy{Kind: KindPlaceholder, Value: rest}
			}
		}
	}
	return LocatorStrategy{Kind: KindCSS, Value: raw}
}

// ResolveOptions 解析选项
type ResolveOptions struct {
	Timeout      time.Duration `json:"timeout,omitempty"`       // 单次探测超时
	RetryCount   int           `json:"retry_count,omitempty"`   // 直接探测的重试次数
	CacheEnabled bool          `json:"cache_enabled,omitempty"` // 是否启用按描述的缓存
}

// ElementDescriptor 元素描述符：聚合多种定位策略与元数据
// 每个逻辑 UI 元素构造一次，构造后不可变
type ElementDescriptor struct {
	Description string `json:"description"` // 人类可读描述（日志、缓存键、NL 兜底）

	// 按 kind 的定位值，空字段跳过
	ID          string `json:"id,omitempty"`
	TestID      string `json:"test_id,omitempty"`
	CSS         string `json:"css,omitempty"`
	XPath       string `json:"xpath,omitempty"`
	Text        string `json:"text,omitempty"`
	Name        string `json:"name,omitempty"`
	Role        string `json:"role,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`

	SelfHeal    bool           `json:"self_heal"`              // 是否允许自愈
	AltLocators []string       `json:"alt_locators,omitempty"` // 备用定位串（kind:value 前缀约定）
	Options     ResolveOptions `json:"options,omitempty"`
}

// WildcardSelector 无任何策略时的兜底选择器
const WildcardSelector = "*"

// Strategies 构建有序策略列表：id → testId → css → xpath → text → name → role →
// placeholder → 备用定位串。没有任何策略时退化为通配选择器
func (d *ElementDescriptor) Strategies() []LocatorStrategy {
	out := make([]LocatorStrategy, 0, 8+len(d.AltLocators))
	appendIf := func(kind LocatorKind, value string) {
		if s, err := NewLocatorStrategy(kind, value); err == nil {
			s.Priority = len(out) + 1
			out = append(out, s)
		}
	}
	appendIf(KindID, d.ID)
	appendIf(KindTestID, d.TestID)
	appendIf(KindCSS, d.CSS)
	appendIf(KindXPath, d.XPath)
	appendIf(KindText, d.Text)
	appendIf(KindName, d.Name)
	appendIf(KindRole, d.Role)
	appendIf(KindPlaceholder, d.Placeholder)

	for _, alt := range d.AltLocators {
		if strings.TrimSpace(alt) == "" {
			continue
		}
		s := ParseTaggedLocator(alt)
		s.Priority = len(out) + 1
		out = append(out, s)
	}

	if len(out) == 0 {
		out = append(out, LocatorStrategy{Kind: KindCSS, Value: WildcardSelector, Priority: 1})
	}
	return out
}

// Primary 返回主策略（有序列表的第一个）
func (d *ElementDescriptor) Primary() LocatorStrategy {
	return d.Strategies()[0]
}

// DescriptorRecord 持久化的命名描述符，供 API 管理
type DescriptorRecord struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Descriptor ElementDescriptor `json:"descriptor"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
