package resolver

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/testwing/testwing/driver"
)

// TextFeatures 文本特征组
type TextFeatures struct {
	Content     string `json:"content"`
	VisibleText string `json:"visible_text"`
	AriaLabel   string `json:"aria_label"`
	Title       string `json:"title"`
	Placeholder string `json:"placeholder"`
	Value       string `json:"value"`
	Alt         string `json:"alt"`
}

// VisualFeatures 视觉特征组
type VisualFeatures struct {
	Visible      bool    `json:"visible"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	ZIndex       int     `json:"z_index"`
	Opacity      float64 `json:"opacity"`
	Background   string  `json:"background"`
	Color        string  `json:"color"`
	FontSize     string  `json:"font_size"`
	InViewport   bool    `json:"in_viewport"`
	VisualWeight float64 `json:"visual_weight"` // 面积 × 不透明度 × max(zIndex,1)
}

// StructuralFeatures 结构特征组
type StructuralFeatures struct {
	Tag          string            `json:"tag"`
	Attributes   map[string]string `json:"attributes"`
	Classes      []string          `json:"classes"`
	ID           string            `json:"id"`
	Interactive  bool              `json:"interactive"`
	ChildCount   int               `json:"child_count"`
	SiblingCount int               `json:"sibling_count"`
	AncestorPath string            `json:"ancestor_path"`
	Depth        int               `json:"depth"`
}

// SemanticFeatures 语义特征组
type SemanticFeatures struct {
	Role         string `json:"role"` // 显式或标签隐含的 ARIA role
	Landmark     bool   `json:"landmark"`
	HeadingLevel int    `json:"heading_level"`
	InList       bool   `json:"in_list"`
	InTable      bool   `json:"in_table"`
	Required     bool   `json:"required"`
}

// ContextFeatures 上下文特征组
type ContextFeatures struct {
	ParentTag       string   `json:"parent_tag"`
	ParentText      string   `json:"parent_text"`
	SiblingTexts    []string `json:"sibling_texts"`
	PrecedingHead   string   `json:"preceding_heading"`
	LabelText       string   `json:"label_text"`
	FormID          string   `json:"form_id"`
	TableHeaders    []string `json:"table_headers"`
	Landmark        string   `json:"landmark"`
	PrevSiblingText string   `json:"prev_sibling_text"`
	NextSiblingText string   `json:"next_sibling_text"`
}

// FeatureVector 元素的多维特征向量，每次提取重新计算
type FeatureVector struct {
	Text       TextFeatures       `json:"text"`
	Visual     VisualFeatures     `json:"visual"`
	Structural StructuralFeatures `json:"structural"`
	Semantic   SemanticFeatures   `json:"semantic"`
	Context    ContextFeatures    `json:"context"`
}

// 相似度分组权重，合计 1.0；不可比较的组贡献 0，不做重归一
const (
	weightText       = 0.30
	weightVisual     = 0.20
	weightStructural = 0.25
	weightSemantic   = 0.15
	weightContext    = 0.10
)

// ExtractFeatures 提取元素特征向量
// 五组在一次页内调用中提取，任何一组失败整体报错
func ExtractFeatures(ctx context.Context, doc driver.Document, selector string) (*FeatureVector, error) {
	var fv FeatureVector
	if err := doc.Eval(ctx, scriptFeatureExtract, &fv, selector); err != nil {
		return nil, errors.Wrapf(err, "extract features for %q", selector)
	}
	return &fv, nil
}

// Similarity 两个特征向量的加权相似度，范围 [0,1]
func Similarity(a, b *FeatureVector) float64 {
	if a == nil || b == nil {
		return 0
	}
	score := 0.0
	if s, ok := textGroupScore(&a.Text, &b.Text); ok {
		score += weightText * s
	}
	if s, ok := visualGroupScore(&a.Visual, &b.Visual); ok {
		score += weightVisual * s
	}
	if s, ok := structuralGroupScore(&a.Structural, &b.Structural); ok {
		score += weightStructural * s
	}
	if s, ok := semanticGroupScore(&a.Semantic, &b.Semantic); ok {
		score += weightSemantic * s
	}
	if s, ok := contextGroupScore(&a.Context, &b.Context); ok {
		score += weightContext * s
	}
	if score > 1 {
		score = 1
	}
	return score
}

// textGroupScore 文本组：自由文本用编辑距离相似度，其余精确匹配计分，封顶 1.0
func textGroupScore(a, b *TextFeatures) (float64, bool) {
	if isZeroText(a) && isZeroText(b) {
		return 0, false
	}
	score := 0.0
	score += 0.40 * textSimilarity(a.Content, b.Content)
	score += 0.20 * textSimilarity(a.VisibleText, b.VisibleText)
	if equalNonEmptyFold(a.AriaLabel, b.AriaLabel) {
		score += 0.15
	}
	if equalNonEmptyFold(a.Placeholder, b.Placeholder) {
		score += 0.10
	}
	if equalNonEmptyFold(a.Title, b.Title) {
		score += 0.05
	}
	if equalNonEmptyFold(a.Value, b.Value) {
		score += 0.05
	}
	if equalNonEmptyFold(a.Alt, b.Alt) {
		score += 0.05
	}
	return capAt1(score), true
}

func visualGroupScore(a, b *VisualFeatures) (float64, bool) {
	if a.Width == 0 && a.Height == 0 && b.Width == 0 && b.Height == 0 {
		return 0, false
	}
	score := 0.0
	if a.Visible == b.Visible {
		score += 0.20
	}
	if absF(a.Width-b.Width) < 10 && absF(a.Height-b.Height) < 10 {
		score += 0.30
	}
	if absF(a.X-b.X) < 50 && absF(a.Y-b.Y) < 50 {
		score += 0.20
	}
	if a.Background == b.Background && a.Color == b.Color {
		score += 0.20
	}
	if a.FontSize == b.FontSize {
		score += 0.10
	}
	return capAt1(score), true
}

func structuralGroupScore(a, b *StructuralFeatures) (float64, bool) {
	if a.Tag == "" && b.Tag == "" {
		return 0, false
	}
	score := 0.0
	if a.Tag == b.Tag {
		score += 0.30
	}
	if a.ID != "" && a.ID == b.ID {
		score += 0.20
	} else if a.ID == "" && b.ID == "" {
		score += 0.20
	}
	score += 0.20 * classOverlap(a.Classes, b.Classes)
	if a.ChildCount == b.ChildCount {
		score += 0.10
	}
	if a.Depth == b.Depth {
		score += 0.10
	}
	if a.Interactive == b.Interactive {
		score += 0.10
	}
	return capAt1(score), true
}

func semanticGroupScore(a, b *SemanticFeatures) (float64, bool) {
	zero := SemanticFeatures{}
	if *a == zero && *b == zero {
		return 0, false
	}
	score := 0.0
	if a.Role == b.Role {
		score += 0.40
	}
	if a.HeadingLevel == b.HeadingLevel {
		score += 0.20
	}
	if a.Landmark == b.Landmark {
		score += 0.10
	}
	if a.InList == b.InList {
		score += 0.10
	}
	if a.InTable == b.InTable {
		score += 0.10
	}
	if a.Required == b.Required {
		score += 0.10
	}
	return capAt1(score), true
}

func contextGroupScore(a, b *ContextFeatures) (float64, bool) {
	if a.ParentTag == "" && b.ParentTag == "" && a.LabelText == "" && b.LabelText == "" {
		return 0, false
	}
	score := 0.0
	if a.ParentTag == b.ParentTag {
		score += 0.20
	}
	score += 0.20 * textSimilarity(a.LabelText, b.LabelText)
	score += 0.20 * textSimilarity(a.PrecedingHead, b.PrecedingHead)
	score += 0.20 * siblingOverlap(a.SiblingTexts, b.SiblingTexts)
	if a.FormID == b.FormID {
		score += 0.10
	}
	if a.Landmark == b.Landmark {
		score += 0.10
	}
	return capAt1(score), true
}

// textSimilarity 归一化编辑距离相似度，大小写不敏感
// 相同返回 1.0，任一为空返回 0.0
func textSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

// levenshtein 经典两行 DP
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, minInt(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func classOverlap(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, c := range a {
		set[c] = true
	}
	shared := 0
	for _, c := range b {
		if set[c] {
			shared++
		}
	}
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	return float64(shared) / float64(max)
}

func siblingOverlap(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[strings.ToLower(t)] = true
	}
	shared := 0
	for _, t := range b {
		if set[strings.ToLower(t)] {
			shared++
		}
	}
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	return float64(shared) / float64(max)
}

func isZeroText(t *TextFeatures) bool {
	return t.Content == "" && t.VisibleText == "" && t.AriaLabel == "" &&
		t.Title == "" && t.Placeholder == "" && t.Value == "" && t.Alt == ""
}

// equalNonEmptyFold 两侧都为空也算相等（字段无信息但一致）
func equalNonEmptyFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func capAt1(f float64) float64 {
	if f > 1 {
		return 1
	}
	return f
}

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
