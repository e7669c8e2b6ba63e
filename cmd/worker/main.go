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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"verify-platform/internal/app"
	"verify-platform/internal/app/worker"
	"verify-platform/pkg/config"
)

func main() {
	var (
		configPath = flag.String("config", "configs/worker.yaml", "配置文件路径")
		input      = flag.String("in", "-", "claims 文件，每行一条；- 表示 stdin")
		output     = flag.String("out", "-", "结果输出（JSON Lines）；- 表示 stdout")
		tier       = flag.String("tier", "", "quick | standard | deep")
		batchSize  = flag.Int("batch-size", 0, "每批并发的 claim 数，0 使用配置")
		sourceList = flag.String("sources", "", "逗号分隔的数据源名称，为空时按 tier 选取")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 收到中断信号时取消尚未开始的批次
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootstrap, err := app.NewBootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	w, err := worker.NewApp(bootstrap)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}

	in, out, closeIO, err := openIO(*input, *output)
	if err != nil {
		log.Fatalf("%v", err)
	}

	opts := worker.Options{Tier: *tier, BatchSize: *batchSize}
	if *sourceList != "" {
		opts.Sources = strings.Split(*sourceList, ",")
	}
	sum, runErr := w.Run(ctx, in, out, opts)
	closeIO()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.Shutdown(shutdownCtx); err != nil {
		log.Printf("关闭应用失败: %v", err)
	}
	if runErr != nil {
		log.Fatalf("批量核查失败: %v", runErr)
	}
	fmt.Fprintf(os.Stderr, "完成: %d 条, 结论分布 %v, 总成本 %.4f\n", sum.Claims, sum.Verdicts, sum.Cost)
}

func openIO(input, output string) (io.Reader, io.Writer, func(), error) {
	var (
		in      io.Reader = os.Stdin
		out     io.Writer = os.Stdout
		closers []io.Closer
	)
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("打开输入文件失败: %w", err)
		}
		in = f
		closers = append(closers, f)
	}
	if output != "-" {
		f, err := os.Create(output)
		if err != nil {
			for _, c := range closers {
				c.Close()
			}
			return nil, nil, nil, fmt.Errorf("创建输出文件失败: %w", err)
		}
		out = f
		closers = append(closers, f)
	}
	return in, out, func() {
		for _, c := range closers {
			c.Close()
		}
	}, nil
}
