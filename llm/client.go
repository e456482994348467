// Package llm 封装 OpenAI 兼容接口，供 AI 自愈策略与描述匹配使用
package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"github.com/testwing/testwing/config"
	"github.com/testwing/testwing/pkg/logger"
)

// 提示词里页面内容的最大长度，超出截断
const maxPageContentChars = 12000

// Client OpenAI 兼容客户端（base_url 可指向任何兼容服务）
type Client struct {
	api       *openai.Client
	model     string
	converter *md.Converter
}

func NewClient(cfg *config.AIConfig) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, errors.New("llm: api key is required")
	}
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		api:       openai.NewClientWithConfig(apiCfg),
		model:     model,
		converter: md.NewConverter("", true, nil),
	}, nil
}

// SuggestLocator 让模型根据页面内容（和截图）推荐替代定位串
// 返回裸定位串：CSS 选择器或以 / 开头的 XPath
func (c *Client) SuggestLocator(ctx context.Context, originalLocator, pageContent string, screenshot []byte) (string, error) {
	prompt := fmt.Sprintf(`The locator %q no longer matches any element on this page.
Suggest ONE replacement locator for the element it most likely referred to.
Answer with the locator only: a CSS selector, or an XPath starting with /.
Do not add quotes, backticks or any explanation.

Page content (markdown):
%s`, originalLocator, c.compress(ctx, pageContent))

	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: prompt},
	}
	if uri, ok := imageDataURI(screenshot); ok {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: uri, Detail: openai.ImageURLDetailLow},
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, MultiContent: parts}},
		MaxTokens:   200,
		Temperature: 0.2,
	})
	if err != nil {
		return "", errors.Wrap(err, "llm: suggest locator")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: no response choices returned")
	}
	return cleanLocator(resp.Choices[0].Message.Content), nil
}

// matchAnswer MatchDescription 要求模型输出的 JSON 结构
type matchAnswer struct {
	Index      int     `json:"index"`
	Confidence float64 `json:"confidence"`
}

// MatchDescription 让模型在候选元素里挑出最符合描述的一个
// candidates 为 "selector :: tag :: text" 行；返回下标与置信度（0-1），无匹配时下标为 -1
func (c *Client) MatchDescription(ctx context.Context, description string, candidates []string) (int, float64, error) {
	if len(candidates) == 0 {
		return -1, 0, nil
	}
	var sb strings.Builder
	for i, line := range candidates {
		fmt.Fprintf(&sb, "%d: %s\n", i, line)
	}
	prompt := fmt.Sprintf(`Pick the interactive element that best matches this description: %q

Candidates (index: selector :: tag :: text):
%s
Answer with JSON only: {"index": <candidate index, or -1 if none match>, "confidence": <0.0-1.0>}`,
		description, sb.String())

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
		MaxTokens:   100,
		Temperature: 0,
	})
	if err != nil {
		return -1, 0, errors.Wrap(err, "llm: match description")
	}
	if len(resp.Choices) == 0 {
		return -1, 0, errors.New("llm: no response choices returned")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.Trim(raw, "` \n")
	var ans matchAnswer
	if err := json.Unmarshal([]byte(raw), &ans); err != nil {
		return -1, 0, errors.Wrapf(err, "llm: unparseable match answer %q", raw)
	}
	if ans.Index < -1 || ans.Index >= len(candidates) {
		return -1, 0, nil
	}
	return ans.Index, ans.Confidence, nil
}

// compress HTML 转 markdown 并截断，失败时退回原文截断
func (c *Client) compress(ctx context.Context, pageContent string) string {
	out, err := c.converter.ConvertString(pageContent)
	if err != nil {
		logger.Warn(ctx, "[LLM] HTML to markdown failed: %v", err)
		out = pageContent
	}
	if len(out) > maxPageContentChars {
		out = out[:maxPageContentChars]
	}
	return out
}

// imageDataURI 截图转 data URI，类型不可识别时放弃携带图片
func imageDataURI(shot []byte) (string, bool) {
	if len(shot) == 0 {
		return "", false
	}
	kind, err := filetype.Image(shot)
	if err != nil {
		return "", false
	}
	return "data:" + kind.MIME.Value + ";base64," + base64.StdEncoding.EncodeToString(shot), true
}

// cleanLocator 去掉模型答案里常见的包裹符号
func cleanLocator(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```css")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.Trim(s, "`\"' \n")
	return s
}
