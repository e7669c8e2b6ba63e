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

package retention

import (
	"strings"
	"time"
)

// Config 核查历史留存配置
type Config struct {
	Enable       bool                     `mapstructure:"enable"`
	MaxAge       time.Duration            `mapstructure:"max_age"`       // 默认留存时长（0=永久）
	ScanInterval time.Duration            `mapstructure:"scan_interval"` // 扫描间隔
	Verdicts     map[string]time.Duration `mapstructure:"verdicts"`      // 按结论覆盖留存时长，如 ERROR: 24h
}

// DefaultConfig 默认留存配置
func DefaultConfig() Config {
	return Config{
		Enable:       false,
		MaxAge:       90 * 24 * time.Hour,
		ScanInterval: time.Hour,
	}
}

// Policy 某一组结论适用的留存时长
type Policy struct {
	Selector Selector
	MaxAge   time.Duration
}

// Policies 展开为具体策略：每个覆盖项一条，最后一条是排除全部覆盖项的默认策略。
// 时长为 0 的策略表示永久保留，不会返回。
func (c Config) Policies() []Policy {
	var (
		out        []Policy
		overridden []string
	)
	for v, age := range c.Verdicts {
		v = strings.ToUpper(strings.TrimSpace(v))
		overridden = append(overridden, v)
		if age > 0 {
			out = append(out, Policy{Selector: Selector{Verdicts: []string{v}}, MaxAge: age})
		}
	}
	if c.MaxAge > 0 {
		out = append(out, Policy{Selector: Selector{Verdicts: overridden, Exclude: len(overridden) > 0}, MaxAge: c.MaxAge})
	}
	return out
}

// MaxAgeFor 返回某个结论的留存时长
func (c Config) MaxAgeFor(verdict string) time.Duration {
	for v, age := range c.Verdicts {
		if strings.EqualFold(strings.TrimSpace(v), verdict) {
			return age
		}
	}
	return c.MaxAge
}
