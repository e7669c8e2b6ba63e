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

package source

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"verify-platform/pkg/errors"
)

// Request 一次核查请求，创建后不可变
type Request struct {
	Claim         string            `json:"claim"`
	Context       map[string]string `json:"context,omitempty"`
	Tier          string            `json:"tier"`
	CorrelationID string            `json:"correlation_id"`
}

// NewRequest 复制 context，correlationID 为空时生成 uuid
func NewRequest(claim string, claimCtx map[string]string, tier, correlationID string) Request {
	var cp map[string]string
	if len(claimCtx) > 0 {
		cp = make(map[string]string, len(claimCtx))
		for k, v := range claimCtx {
			cp[k] = v
		}
	}
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	return Request{
		Claim:         strings.TrimSpace(claim),
		Context:       cp,
		Tier:          tier,
		CorrelationID: correlationID,
	}
}

// Validate claim 非空且不超过 maxLen 个字符
func (r Request) Validate(maxLen int) error {
	if strings.TrimSpace(r.Claim) == "" {
		return errors.Invalidf("claim is empty")
	}
	if n := utf8.RuneCountInString(r.Claim); maxLen > 0 && n > maxLen {
		return errors.Invalidf("claim length %d exceeds %d", n, maxLen)
	}
	return nil
}
