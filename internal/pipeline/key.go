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

package pipeline

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/cases"
)

// KeyPrefix 缓存与去重 key 前缀
const KeyPrefix = "verify:"

// NormalizeClaim Unicode case fold、去首尾空白、合并连续空白
func NormalizeClaim(claim string) string {
	return strings.Join(strings.Fields(cases.Fold().String(claim)), " ")
}

// KeyFor claim 的稳定 key：只由规范化后的 claim 决定
func KeyFor(claim string) string {
	return fmt.Sprintf("%s%016x", KeyPrefix, xxhash.Sum64String(NormalizeClaim(claim)))
}
