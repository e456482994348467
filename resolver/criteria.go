package resolver

import (
	"regexp"
	"strings"
)

// Position 元素在视口中的大致方位
type Position string

const (
	PositionTop    Position = "top"
	PositionBottom Position = "bottom"
	PositionLeft   Position = "left"
	PositionRight  Position = "right"
	PositionCenter Position = "center"
	PositionNone   Position = ""
)

// SizeClass 元素大小档位
type SizeClass string

const (
	SizeSmall  SizeClass = "small"
	SizeMedium SizeClass = "medium"
	SizeLarge  SizeClass = "large"
	SizeNone   SizeClass = ""
)

// Shape 元素形状
type Shape string

const (
	ShapeRound  Shape = "round"
	ShapeSquare Shape = "square"
	ShapeNone   Shape = ""
)

// Criteria 从自然语言描述解析出的结构化匹配条件
type Criteria struct {
	Color    string
	Position Position
	Size     SizeClass
	Shape    Shape
	Text     string
	Near     string // 邻近锚点描述
}

// Count 实际给出的条件数（近邻作为过滤条件，不计入加权项）
func (c Criteria) Count() int {
	n := 0
	if c.Color != "" {
		n++
	}
	if c.Position != PositionNone {
		n++
	}
	if c.Size != SizeNone {
		n++
	}
	if c.Shape != ShapeNone {
		n++
	}
	if c.Text != "" {
		n++
	}
	return n
}

var (
	reColor    = regexp.MustCompile(`(?i)\b(red|blue|green|yellow|orange|purple|pink|black|white|gray|grey)\b`)
	rePosition = regexp.MustCompile(`(?i)\b(top|bottom|left|right|center|middle)\b`)
	reSize     = regexp.MustCompile(`(?i)\b(small|tiny|large|big|huge|medium)\b`)
	reShape    = regexp.MustCompile(`(?i)\b(round|circular|circle|square|rectangular)\b`)
	reQuoted   = regexp.MustCompile(`["'“”]([^"'“”]+)["'“”]`)
	reNear     = regexp.MustCompile(`(?i)\b(?:near|next to|beside|close to)\s+(.+)$`)
	// 描述性停用词，剔除后剩余的词作为文本条件
	reStop = regexp.MustCompile(`(?i)\b(the|a|an|button|link|input|field|element|icon|with|that|says|labeled|red|blue|green|yellow|orange|purple|pink|black|white|gray|grey|top|bottom|left|right|center|middle|small|tiny|large|big|huge|medium|round|circular|circle|square|rectangular)\b`)
)

// ParseCriteria 纯函数：描述字符串 -> 结构化条件
func ParseCriteria(description string) Criteria {
	c := Criteria{}
	desc := strings.TrimSpace(description)

	if m := reNear.FindStringSubmatch(desc); m != nil {
		c.Near = strings.TrimSpace(m[1])
		desc = strings.TrimSpace(desc[:len(desc)-len(m[0])])
	}

	if m := reColor.FindStringSubmatch(desc); m != nil {
		color := strings.ToLower(m[1])
		if color == "grey" {
			color = "gray"
		}
		c.Color = color
	}

	if m := rePosition.FindStringSubmatch(desc); m != nil {
		switch strings.ToLower(m[1]) {
		case "top":
			c.Position = PositionTop
		case "bottom":
			c.Position = PositionBottom
		case "left":
			c.Position = PositionLeft
		case "right":
			c.Position = PositionRight
		case "center", "middle":
			c.Position = PositionCenter
		}
	}

	if m := reSize.FindStringSubmatch(desc); m != nil {
		switch strings.ToLower(m[1]) {
		case "small", "tiny":
			c.Size = SizeSmall
		case "large", "big", "huge":
			c.Size = SizeLarge
		case "medium":
			c.Size = SizeMedium
		}
	}

	if m := reShape.FindStringSubmatch(desc); m != nil {
		switch strings.ToLower(m[1]) {
		case "round", "circular", "circle":
			c.Shape = ShapeRound
		case "square", "rectangular":
			c.Shape = ShapeSquare
		}
	}

	// 文本条件：引号内容优先，否则取剔除描述词后的剩余词
	if m := reQuoted.FindStringSubmatch(desc); m != nil {
		c.Text = strings.TrimSpace(m[1])
	} else {
		rest := reStop.ReplaceAllString(desc, " ")
		rest = strings.Join(strings.Fields(rest), " ")
		c.Text = rest
	}

	return c
}
