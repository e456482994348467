package resolver

import (
	"context"
	"strings"

	"github.com/testwing/testwing/driver"
	"github.com/testwing/testwing/pkg/logger"
)

// interactiveElement 页内扫描输出的一行可交互元素
type interactiveElement struct {
	Selector       string  `json:"selector"`
	Tag            string  `json:"tag"`
	Text           string  `json:"text"`
	Background     string  `json:"background"`
	Color          string  `json:"color"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Width          float64 `json:"width"`
	Height         float64 `json:"height"`
	CenterX        float64 `json:"center_x"`
	CenterY        float64 `json:"center_y"`
	ViewportWidth  float64 `json:"viewport_width"`
	ViewportHeight float64 `json:"viewport_height"`
	BorderRadius   string  `json:"border_radius"`
}

// 视觉描述匹配的固定条件权重
const (
	criterionWeightText     = 0.4
	criterionWeightColor    = 0.2
	criterionWeightPosition = 0.2
	criterionWeightSize     = 0.1
	criterionWeightShape    = 0.1
)

// matchCandidate 匹配结果
type matchCandidate struct {
	Selector   string
	Confidence float64
}

// findMatchingElement 视觉描述匹配器
// 扫描可交互元素，按条件加权打分；总分 = Σ(命中权重) × 命中数/条件数
// 该归一化保留自原始行为：部分命中会被双重惩罚，改变它会移动阈值边界
func findMatchingElement(ctx context.Context, doc driver.Document, criteria Criteria, threshold float64) (matchCandidate, bool) {
	total := criteria.Count()
	if total == 0 {
		return matchCandidate{}, false
	}

	var elems []interactiveElement
	if err := doc.Eval(ctx, scriptInteractiveScan, &elems); err != nil {
		logger.Warn(ctx, "[VisualMatch] Interactive scan failed: %v", err)
		return matchCandidate{}, false
	}

	best := matchCandidate{}
	for _, el := range elems {
		if criteria.Near != "" && !nearAnchor(elems, el, criteria.Near) {
			continue
		}

		weightSum := 0.0
		matched := 0
		if criteria.Text != "" && textMatches(el.Text, criteria.Text) {
			weightSum += criterionWeightText
			matched++
		}
		if criteria.Color != "" && colorMatches(el, criteria.Color) {
			weightSum += criterionWeightColor
			matched++
		}
		if criteria.Position != PositionNone && positionMatches(el, criteria.Position) {
			weightSum += criterionWeightPosition
			matched++
		}
		if criteria.Size != SizeNone && sizeMatches(el, criteria.Size) {
			weightSum += criterionWeightSize
			matched++
		}
		if criteria.Shape != ShapeNone && shapeMatches(el, criteria.Shape) {
			weightSum += criterionWeightShape
			matched++
		}

		confidence := weightSum * float64(matched) / float64(total)
		if confidence > best.Confidence {
			best = matchCandidate{Selector: el.Selector, Confidence: confidence}
		}
	}

	if best.Selector == "" || best.Confidence < threshold {
		return matchCandidate{}, false
	}
	logger.Info(ctx, "[VisualMatch] Best candidate %q with confidence %.2f", best.Selector, best.Confidence)
	return best, true
}

func textMatches(elementText, want string) bool {
	return strings.Contains(strings.ToLower(elementText), strings.ToLower(want))
}

// colorMatches 按 rgb 值粗分类后比对
func colorMatches(el interactiveElement, want string) bool {
	return dominantColor(el.Background) == want || dominantColor(el.Color) == want
}

var rgbStripper = strings.NewReplacer("rgba(", "", "rgb(", "", ")", "", " ", "")

// dominantColor 把 rgb()/rgba() 串归为基础色名
func dominantColor(css string) string {
	css = strings.ToLower(strings.TrimSpace(css))
	if !strings.HasPrefix(css, "rgb") {
		return css
	}
	parts := strings.Split(rgbStripper.Replace(css), ",")
	if len(parts) < 3 {
		return ""
	}
	r, g, b := atoiSafe(parts[0]), atoiSafe(parts[1]), atoiSafe(parts[2])
	switch {
	case r > 200 && g > 200 && b > 200:
		return "white"
	case r < 60 && g < 60 && b < 60:
		return "black"
	case r > g+50 && r > b+50:
		return "red"
	case g > r+50 && g > b+50:
		return "green"
	case b > r+50 && b > g+50:
		return "blue"
	case r > 150 && g > 150 && b < 100:
		return "yellow"
	case r > 150 && g > 80 && g < 180 && b < 80:
		return "orange"
	case r > 100 && b > 100 && g < 100:
		return "purple"
	default:
		return "gray"
	}
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func positionMatches(el interactiveElement, pos Position) bool {
	if el.ViewportWidth == 0 || el.ViewportHeight == 0 {
		return false
	}
	fx := el.CenterX / el.ViewportWidth
	fy := el.CenterY / el.ViewportHeight
	switch pos {
	case PositionTop:
		return fy < 0.33
	case PositionBottom:
		return fy > 0.67
	case PositionLeft:
		return fx < 0.33
	case PositionRight:
		return fx > 0.67
	case PositionCenter:
		return fx >= 0.33 && fx <= 0.67 && fy >= 0.33 && fy <= 0.67
	}
	return false
}

func sizeMatches(el interactiveElement, size SizeClass) bool {
	area := el.Width * el.Height
	switch size {
	case SizeSmall:
		return area < 2500
	case SizeMedium:
		return area >= 2500 && area < 20000
	case SizeLarge:
		return area >= 20000
	}
	return false
}

func shapeMatches(el interactiveElement, shape Shape) bool {
	switch shape {
	case ShapeRound:
		return strings.Contains(el.BorderRadius, "50%") || strings.HasPrefix(el.BorderRadius, "9999")
	case ShapeSquare:
		return el.BorderRadius == "" || el.BorderRadius == "0px"
	}
	return false
}

// nearAnchor 近邻过滤：锚点文本命中的元素 150px 范围内
func nearAnchor(all []interactiveElement, el interactiveElement, anchorText string) bool {
	for _, other := range all {
		if other.Selector == el.Selector {
			continue
		}
		if !textMatches(other.Text, anchorText) {
			continue
		}
		dx := absF(other.CenterX - el.CenterX)
		dy := absF(other.CenterY - el.CenterY)
		if dx < 150 && dy < 150 {
			return true
		}
	}
	return false
}
