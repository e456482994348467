package models

import "time"

// HealingResult 一次自愈尝试的结果
type HealingResult struct {
	Success         bool      `json:"success"`
	OriginalLocator string    `json:"original_locator"`
	HealedLocator   string    `json:"healed_locator,omitempty"`
	StrategyName    string    `json:"strategy_name,omitempty"`
	Confidence      float64   `json:"confidence,omitempty"` // 0-100
	DurationMs      int64     `json:"duration_ms"`
	Timestamp       time.Time `json:"timestamp"`
}

// VisualSignature 元素的视觉签名（包围盒 + 计算样式）
// 在定位成功时缓存，供视觉自愈策略比对
type VisualSignature struct {
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Top        float64 `json:"top"`
	Left       float64 `json:"left"`
	Background string  `json:"background"`
	Color      string  `json:"color"`
	FontSize   string  `json:"font_size"`
}

// StructureSignature 元素的结构签名
type StructureSignature struct {
	Tag          string            `json:"tag"`
	ParentTag    string            `json:"parent_tag"`
	ParentClass  string            `json:"parent_class"`
	SiblingIndex int               `json:"sibling_index"`
	ChildCount   int               `json:"child_count"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}
