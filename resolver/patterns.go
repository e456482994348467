package resolver

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/testwing/testwing/driver"
	"github.com/testwing/testwing/pkg/logger"
)

// PatternEntry 一条 自然语言短语 -> 选择器模板 规则
type PatternEntry struct {
	Pattern  *regexp.Regexp
	Template string // {0} {1} … 替换为捕获组
	Priority int    // 类别内升序
}

// PatternRegistry 按类别组织的模式目录
// 类别按注册顺序迭代，类别内按 priority 升序，整体纯语法、完全确定
type PatternRegistry struct {
	order      []string
	categories map[string][]PatternEntry
}

func NewPatternRegistry() *PatternRegistry {
	r := &PatternRegistry{categories: make(map[string][]PatternEntry)}
	r.registerDefaults()
	return r
}

// Register 注册一个类别的模式，已存在则追加并重新排序
func (r *PatternRegistry) Register(category string, entries ...PatternEntry) {
	if _, ok := r.categories[category]; !ok {
		r.order = append(r.order, category)
	}
	list := append(r.categories[category], entries...)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Priority < list[j].Priority })
	r.categories[category] = list
}

func (r *PatternRegistry) registerDefaults() {
	r.Register("button",
		PatternEntry{Pattern: regexp.MustCompile(`(?i)^(.*)\s+button$`), Template: `button:has-text("{0}")`, Priority: 1},
		PatternEntry{Pattern: regexp.MustCompile(`(?i)^button\s+(.*)$`), Template: `button:has-text("{0}")`, Priority: 2},
		PatternEntry{Pattern: regexp.MustCompile(`(?i)^(?:click|press)\s+(.*)$`), Template: `button:has-text("{0}")`, Priority: 3},
		PatternEntry{Pattern: regexp.MustCompile(`(?i)^submit$`), Template: `button[type='submit']`, Priority: 4},
	)
	r.Register("input",
		PatternEntry{Pattern: regexp.MustCompile(`(?i)^(.*)\s+(?:input|field|textbox)$`), Template: `input[placeholder*='{0}']`, Priority: 1},
		PatternEntry{Pattern: regexp.MustCompile(`(?i)^(?:enter|type)\s+(.*)$`), Template: `input[aria-label*='{0}']`, Priority: 2},
		PatternEntry{Pattern: regexp.MustCompile(`(?i)^search(?:\s+box)?$`), Template: `input[type='search']`, Priority: 3},
	)
	r.Register("link",
		PatternEntry{Pattern: regexp.MustCompile(`(?i)^(.*)\s+link$`), Template: `a:has-text("{0}")`, Priority: 1},
		PatternEntry{Pattern: regexp.MustCompile(`(?i)^go\s+to\s+(.*)$`), Template: `a:has-text("{0}")`, Priority: 2},
	)
	r.Register("dropdown",
		PatternEntry{Pattern: regexp.MustCompile(`(?i)^(.*)\s+(?:dropdown|select)$`), Template: `select[aria-label*='{0}']`, Priority: 1},
	)
	r.Register("checkbox",
		PatternEntry{Pattern: regexp.MustCompile(`(?i)^(.*)\s+checkbox$`), Template: `input[type='checkbox'][aria-label*='{0}']`, Priority: 1},
	)
	r.Register("radio",
		PatternEntry{Pattern: regexp.MustCompile(`(?i)^(.*)\s+radio(?:\s+button)?$`), Template: `input[type='radio'][aria-label*='{0}']`, Priority: 1},
	)
}

// BuildSelector 仅做模板求值，不探测页面（便于测试确定性）
// 返回第一个正则命中的模板展开结果
func (r *PatternRegistry) BuildSelector(description string) (string, bool) {
	description = strings.TrimSpace(description)
	for _, category := range r.order {
		for _, entry := range r.categories[category] {
			m := entry.Pattern.FindStringSubmatch(description)
			if m == nil {
				continue
			}
			return interpolate(entry.Template, m[1:]), true
		}
	}
	return "", false
}

// ResolveByPatterns 依次尝试每个类别的每个模式
// 命中的模板展开后还要在文档中探测存在，第一个存在的选择器胜出
func (r *PatternRegistry) ResolveByPatterns(ctx context.Context, doc driver.Document, description string) (string, bool) {
	description = strings.TrimSpace(description)
	for _, category := range r.order {
		for _, entry := range r.categories[category] {
			m := entry.Pattern.FindStringSubmatch(description)
			if m == nil {
				continue
			}
			selector := interpolate(entry.Template, m[1:])
			if probeLocator(ctx, doc, selector) > 0 {
				logger.Info(ctx, "[Patterns] Description %q matched category %s -> %s", description, category, selector)
				return selector, true
			}
			logger.Debug(ctx, "[Patterns] Built selector %q for %q but nothing matched on page", selector, description)
		}
	}
	return "", false
}

// interpolate 把捕获组填入 {0} {1} … 占位符
func interpolate(template string, groups []string) string {
	out := template
	for i, g := range groups {
		placeholder := "{" + strconv.Itoa(i) + "}"
		out = strings.ReplaceAll(out, placeholder, strings.TrimSpace(g))
	}
	return out
}
