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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	apihttp "verify-platform/internal/api/http"
	"verify-platform/internal/app/worker"
	"verify-platform/internal/consensus"
	"verify-platform/internal/pipeline"
	"verify-platform/pkg/config"
)

const version = "0.1.0"

var (
	apiURL    string
	tier      string
	sources   []string
	stream    bool
	batchSize int
	limit     int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "verifyctl",
		Short:         "verify-platform 命令行客户端",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&apiURL, "api", apiBaseURL(), "API 地址（环境变量 VERIFY_API_URL）")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "verifyctl %s\n", version)
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "健康检查",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newClient(apiURL).health()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "显示配置概要（configs/api.yaml）",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAPIConfig()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "api.port=%d\n", cfg.API.Port)
			fmt.Fprintf(w, "api.host=%s\n", cfg.API.Host)
			fmt.Fprintf(w, "cache.type=%s\n", cfg.Cache.Type)
			fmt.Fprintf(w, "history.type=%s\n", cfg.History.Type)
			fmt.Fprintf(w, "sources=%d\n", len(cfg.Sources))
			return nil
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify [claim]",
		Short: "核查一条 claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := apihttp.VerifyRequest{Claim: args[0], Tier: tier, Sources: sources}
			c := newClient(apiURL)
			if !stream {
				res, err := c.verify(req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			}
			w := cmd.OutOrStdout()
			return c.verifyStream(req, func(e pipeline.Event) {
				printEvent(w, e)
			})
		},
	}
	verifyCmd.Flags().StringVar(&tier, "tier", "", "quick | standard | deep")
	verifyCmd.Flags().StringSliceVar(&sources, "source", nil, "指定数据源，可重复")
	verifyCmd.Flags().BoolVar(&stream, "stream", false, "流式输出各数据源结果")

	batchCmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "批量核查文件中的 claim（每行一条），输出 JSON Lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			claims, err := worker.ReadClaims(f)
			if err != nil {
				return err
			}
			results, err := newClient(apiURL).batch(apihttp.BatchRequest{
				Claims:    claims,
				BatchSize: batchSize,
				Tier:      tier,
				Sources:   sources,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range results {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		},
	}
	batchCmd.Flags().StringVar(&tier, "tier", "", "quick | standard | deep")
	batchCmd.Flags().StringSliceVar(&sources, "source", nil, "指定数据源，可重复")
	batchCmd.Flags().IntVar(&batchSize, "batch-size", 0, "每批并发的 claim 数，0 使用服务端默认")

	sourcesCmd := &cobra.Command{
		Use:   "sources",
		Short: "列出数据源及熔断、限流状态",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := newClient(apiURL).sources()
			if err != nil {
				return err
			}
			printSources(cmd.OutOrStdout(), list)
			return nil
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset [source]",
		Short: "将数据源熔断器恢复为 closed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(apiURL).resetSource(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: closed\n", args[0])
			return nil
		},
	}

	getCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "按 ID 查询核查结果",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newClient(apiURL).verification(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "最近的核查结果",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := newClient(apiURL).history(limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), list)
			return nil
		},
	}
	historyCmd.Flags().IntVar(&limit, "limit", 20, "返回条数")

	root.AddCommand(versionCmd, healthCmd, configCmd, verifyCmd, batchCmd, sourcesCmd, resetCmd, getCmd, historyCmd)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printEvent(w io.Writer, e pipeline.Event) {
	switch e.Type {
	case pipeline.EventResult:
		fmt.Fprintf(w, "[%s] %s confidence=%.1f\n", e.Source, e.Result.Verdict, e.Result.Confidence)
	case pipeline.EventError:
		fmt.Fprintf(w, "[%s] error: %v\n", e.Source, e.Error)
	case pipeline.EventComplete:
		if e.Consensus == nil {
			fmt.Fprintf(w, "incomplete: %s\n", e.Message)
			return
		}
		r := e.Consensus
		fmt.Fprintf(w, "=> %s confidence=%.1f interval=[%.1f, %.1f] agreement=%.0f%% id=%s\n",
			r.FinalVerdict, r.Confidence, r.Interval.Lower, r.Interval.Upper, r.AgreementPercentage, r.ID)
	}
}

func printSources(w io.Writer, list []apihttp.SourceStatus) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCLASS\tWEIGHT\tCIRCUIT\tFAILURES\tTOKENS")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%d\t%.1f/%d\n",
			s.Name, s.Class, s.Weight, s.Circuit.State, s.Circuit.ConsecutiveFailures, s.RateLimit.Tokens, s.RateLimit.Capacity)
	}
	tw.Flush()
}

func printHistory(w io.Writer, list []*consensus.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVERDICT\tCONFIDENCE\tTIME\tCLAIM")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%s\n",
			r.ID, r.FinalVerdict, r.Confidence, r.Timestamp.Format("2006-01-02 15:04:05"), truncate(r.Claim, 60))
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
