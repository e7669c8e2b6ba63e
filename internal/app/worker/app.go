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

package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"verify-platform/internal/app"
	"verify-platform/internal/consensus"
	"verify-platform/internal/source"
	"verify-platform/pkg/log"
	"verify-platform/pkg/tracing"
)

// Options 一次批量核查的参数
type Options struct {
	Tier      string
	BatchSize int      // 0 使用 pipeline.batch_size
	Sources   []string // 为空时按 tier 选取
}

// Summary 批量核查统计
type Summary struct {
	Claims   int                    `json:"claims"`
	Verdicts map[source.Verdict]int `json:"verdicts"`
	Cost     float64                `json:"total_cost"`
}

// App Worker 应用：从输入逐行读取 claim，批量核查后逐行输出 JSON 结果
type App struct {
	bootstrap *app.Bootstrap
	logger    *log.Logger
	tracer    *sdktrace.TracerProvider
}

// NewApp 创建 Worker 应用；开启 tracing 时初始化 OTLP exporter
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	if bootstrap == nil || bootstrap.Pipeline == nil {
		return nil, fmt.Errorf("bootstrap is not initialized")
	}
	a := &App{bootstrap: bootstrap, logger: bootstrap.Logger}

	t := bootstrap.Config.Monitoring.Tracing
	if t.Enable && t.ExportEndpoint != "" {
		tp, err := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    t.ServiceName,
			ExportEndpoint: t.ExportEndpoint,
			Insecure:       t.Insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化链路追踪失败: %w", err)
		}
		a.tracer = tp
	}
	return a, nil
}

// ReadClaims 每行一个 claim，忽略空行与 # 开头的注释行
func ReadClaims(r io.Reader) ([]string, error) {
	var claims []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		claims = append(claims, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("读取 claims 失败: %w", err)
	}
	return claims, nil
}

// Run 核查 in 中的全部 claim，结果按输入顺序写入 out（JSON Lines）
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer, opts Options) (Summary, error) {
	claims, err := ReadClaims(in)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Claims: len(claims), Verdicts: make(map[source.Verdict]int)}
	if len(claims) == 0 {
		a.logger.Warn("没有待核查的 claim")
		return sum, nil
	}

	tierName, tier := a.bootstrap.Pipeline.Tier(opts.Tier)
	adapters, err := a.bootstrap.Sources.Select(tier.MaxSources, opts.Sources...)
	if err != nil {
		return sum, err
	}
	a.logger.Info("批量核查开始", "claims", len(claims), "tier", tierName, "sources", len(adapters))

	results := a.bootstrap.Pipeline.BatchVerify(ctx, claims, opts.BatchSize, tierName, adapters)
	if err := writeResults(out, results, &sum); err != nil {
		return sum, err
	}
	a.logger.Info("批量核查完成", "claims", sum.Claims, "verdicts", sum.Verdicts, "total_cost", sum.Cost)
	return sum, ctx.Err()
}

func writeResults(out io.Writer, results []*consensus.Result, sum *Summary) error {
	enc := json.NewEncoder(out)
	for _, r := range results {
		sum.Verdicts[r.FinalVerdict]++
		sum.Cost += r.TotalCost
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("写入结果失败: %w", err)
		}
	}
	return nil
}

// Shutdown 刷新 tracer 并释放存储连接
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.tracer != nil {
		err = a.tracer.Shutdown(ctx)
	}
	a.bootstrap.Close()
	return err
}
