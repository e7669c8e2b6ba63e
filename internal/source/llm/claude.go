// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"verify-platform/internal/source"
	"verify-platform/pkg/config"
)

const (
	defaultClaudeBaseURL = "https://api.anthropic.com/v1"
	defaultClaudeModel   = "claude-3-5-haiku-latest"
	anthropicVersion     = "2023-06-01"
)

// Claude Anthropic Messages API adapter
type Claude struct {
	name    string
	model   string
	apiKey  string
	baseURL string
	cost    float64
	client  *resty.Client
}

// NewClaude 创建 Claude adapter；baseURL 为空时使用官方地址
func NewClaude(name, model, apiKey, baseURL string, cost float64) *Claude {
	if model == "" {
		model = defaultClaudeModel
	}
	if baseURL == "" {
		baseURL = defaultClaudeBaseURL
	}
	// 重试由 scheduler 统一负责
	client := resty.New().SetRetryCount(0)
	return &Claude{
		name:    name,
		model:   model,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		cost:    cost,
		client:  client,
	}
}

// ClaudeFactory 从配置构建
func ClaudeFactory(_ context.Context, cfg config.SourceConfig) (source.Adapter, error) {
	return NewClaude(cfg.Name, cfg.Model, cfg.APIKey, cfg.BaseURL, cfg.Cost), nil
}

func (c *Claude) Name() string                { return c.name }
func (c *Claude) Class() source.ProviderClass { return source.ClassModel }

// Call 调用 /messages 并解析 JSON 结论
func (c *Claude) Call(ctx context.Context, claim string, claimCtx map[string]string, deadline time.Duration) (*source.Result, error) {
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}
	start := time.Now()

	request := map[string]interface{}{
		"model":      c.model,
		"max_tokens": 512,
		"system":     systemPrompt,
		"messages":   []map[string]string{{"role": "user", "content": buildPrompt(claim, claimCtx)}},
	}
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", c.apiKey).
		SetHeader("anthropic-version", anthropicVersion).
		SetBody(request).
		Post(c.baseURL + "/messages")
	if err != nil {
		return nil, source.Classify(c.name, err)
	}
	if response.StatusCode() != http.StatusOK {
		return nil, statusError(c.name, response.StatusCode(), response.String())
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return nil, &source.Error{Kind: source.KindInvalid, Source: c.name, Cause: "解析 Claude 响应失败: " + err.Error()}
	}
	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	res, err := parseReply(c.name, text.String())
	if err != nil {
		return nil, err
	}
	res.Cost = c.cost
	res.LatencyMs = time.Since(start).Milliseconds()
	return res, nil
}
