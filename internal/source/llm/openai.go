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
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"verify-platform/internal/source"
	"verify-platform/pkg/config"
)

// OpenAI 通过 eino ChatModel 调用 OpenAI 兼容接口
type OpenAI struct {
	name string
	cost float64
	chat model.BaseChatModel
}

// NewOpenAI 使用给定 ChatModel 构建 adapter
func NewOpenAI(name string, cost float64, chat model.BaseChatModel) *OpenAI {
	return &OpenAI{name: name, cost: cost, chat: chat}
}

// OpenAIFactory 从配置创建 eino openai ChatModel
func OpenAIFactory(ctx context.Context, cfg config.SourceConfig) (source.Adapter, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}
	temperature := float32(0)
	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       modelName,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, err
	}
	return NewOpenAI(cfg.Name, cfg.Cost, chat), nil
}

func (o *OpenAI) Name() string                { return o.name }
func (o *OpenAI) Class() source.ProviderClass { return source.ClassModel }

// Call 发送 system + user 消息并解析 JSON 结论
func (o *OpenAI) Call(ctx context.Context, claim string, claimCtx map[string]string, deadline time.Duration) (*source.Result, error) {
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}
	start := time.Now()
	msg, err := o.chat.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(buildPrompt(claim, claimCtx)),
	})
	if err != nil {
		return nil, source.Classify(o.name, err)
	}
	res, err := parseReply(o.name, msg.Content)
	if err != nil {
		return nil, err
	}
	res.Cost = o.cost
	res.LatencyMs = time.Since(start).Milliseconds()
	return res, nil
}
