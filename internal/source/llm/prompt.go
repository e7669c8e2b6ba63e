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

// Package llm 基于大模型的数据源 adapter：openai 走 eino ChatModel，claude 走 Messages API。
package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"verify-platform/internal/source"
)

const systemPrompt = `You are a fact-checking assistant. Assess whether the user's claim is true.
Reply with a single JSON object and nothing else:
{"verdict": "TRUE|FALSE|MISLEADING|UNVERIFIABLE", "confidence": 0-100, "reasoning": "...", "evidence": ["url or citation", ...]}`

// buildPrompt 拼接 claim 与可选上下文（按 key 排序保证稳定）
func buildPrompt(claim string, claimCtx map[string]string) string {
	var b strings.Builder
	b.WriteString("Claim: ")
	b.WriteString(claim)
	if len(claimCtx) > 0 {
		keys := make([]string, 0, len(claimCtx))
		for k := range claimCtx {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\nContext:")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n- %s: %s", k, claimCtx[k])
		}
	}
	return b.String()
}

type verdictReply struct {
	Verdict    string   `json:"verdict"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Evidence   []string `json:"evidence"`
}

// parseReply 从模型输出中取出第一个 JSON 对象（容忍 ``` 包裹与前后说明文字）
func parseReply(name, text string) (*source.Result, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, &source.Error{Kind: source.KindInvalid, Source: name, Cause: "no JSON object in reply"}
	}
	var reply verdictReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &reply); err != nil {
		return nil, &source.Error{Kind: source.KindInvalid, Source: name, Cause: "解析模型回复失败: " + err.Error()}
	}
	verdict, err := source.ParseVerdict(reply.Verdict)
	if err != nil {
		return nil, &source.Error{Kind: source.KindInvalid, Source: name, Cause: err.Error()}
	}
	res := &source.Result{
		Verdict:    verdict,
		Confidence: reply.Confidence,
		Reasoning:  reply.Reasoning,
		Evidence:   reply.Evidence,
	}
	res.Normalize()
	return res, nil
}

// statusError 按 HTTP 状态码归类上游错误
func statusError(name string, code int, body string) error {
	kind := source.KindTransport
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout {
		kind = source.KindInvalid
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return &source.Error{Kind: kind, Source: name, Cause: fmt.Sprintf("status %d: %s", code, body)}
}
