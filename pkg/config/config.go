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

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"verify-platform/pkg/retention"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig             `mapstructure:"api"`
	Pipeline   PipelineConfig        `mapstructure:"pipeline"`
	Circuit    CircuitConfig         `mapstructure:"circuit"`
	RateLimit  RateLimitConfig       `mapstructure:"rate_limit"`
	Cache      CacheConfig           `mapstructure:"cache"`
	History    HistoryConfig         `mapstructure:"history"`
	Consensus  ConsensusConfig       `mapstructure:"consensus"`
	Tiers      map[string]TierConfig `mapstructure:"tiers"`
	Sources    []SourceConfig        `mapstructure:"sources"`
	Secrets    SecretsConfig         `mapstructure:"secrets"`
	Log        LogConfig             `mapstructure:"log"`
	Monitoring MonitoringConfig      `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	Timeout      time.Duration `mapstructure:"timeout"`        // 单请求最长处理时间，0 表示不限制
	RateLimitRPS int           `mapstructure:"rate_limit_rps"` // 入口限流，0 表示不限制
	CORS         CORSConfig    `mapstructure:"cors"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// PipelineConfig 校验管线：并发、超时、重试与批处理
type PipelineConfig struct {
	MinValidSources    int           `mapstructure:"min_valid_sources"`    // 少于该数量的有效结果时返回 ERROR
	MaxConcurrentCalls int           `mapstructure:"max_concurrent_calls"` // 进程内同时在途的 source 调用上限
	PerSourceTimeout   time.Duration `mapstructure:"per_source_timeout"`   // 单次 source 调用超时上限
	OverallDeadline    time.Duration `mapstructure:"overall_deadline"`     // tier 未指定 deadline 时的整体预算
	MaxRetries         int           `mapstructure:"max_retries"`          // 失败后最大重试次数（不含首次），<0 关闭
	RetryBackoff       time.Duration `mapstructure:"retry_backoff"`        // 指数退避初始间隔
	MaxClaimLength     int           `mapstructure:"max_claim_length"`     // claim 最大字符数（rune）
	BatchSize          int           `mapstructure:"batch_size"`
	BatchPause         time.Duration `mapstructure:"batch_pause"` // 批次之间的停顿
}

// CircuitConfig 熔断器配置，对所有 source 生效
type CircuitConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
	HalfOpenMaxCalls int           `mapstructure:"half_open_max_calls"`
}

// RateLimitConfig 令牌桶配置；Sources 按 source 名覆盖默认值
type RateLimitConfig struct {
	Capacity     int                       `mapstructure:"capacity"`
	RefillPerSec float64                   `mapstructure:"refill_per_sec"`
	Sources      map[string]BucketOverride `mapstructure:"sources"`
}

// BucketOverride 单个 source 的令牌桶覆盖
type BucketOverride struct {
	Capacity     int     `mapstructure:"capacity"`
	RefillPerSec float64 `mapstructure:"refill_per_sec"`
}

// CacheConfig 结果缓存配置
type CacheConfig struct {
	Type       string        `mapstructure:"type"` // memory | redis
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
	Addr       string        `mapstructure:"addr"`
	DB         int           `mapstructure:"db"`
	Password   string        `mapstructure:"password"`
}

// HistoryConfig 校验历史存储配置
type HistoryConfig struct {
	Type      string           `mapstructure:"type"` // memory | postgres
	DSN       string           `mapstructure:"dsn"`  // Postgres 连接串，type=postgres 时必填
	Retention retention.Config `mapstructure:"retention"`
}

// ConsensusConfig 共识聚合参数
type ConsensusConfig struct {
	ClassWeights      map[string]float64 `mapstructure:"class_weights"` // provider class -> 权重，缺省项使用内置表
	IntervalBase      float64            `mapstructure:"interval_base"`
	IntervalStdFactor float64            `mapstructure:"interval_std_factor"`
}

// TierConfig 校验深度：最多调用多少个 source、整体时间预算
type TierConfig struct {
	MaxSources int           `mapstructure:"max_sources"`
	Deadline   time.Duration `mapstructure:"deadline"`
}

// SourceConfig 单个 source adapter 配置
type SourceConfig struct {
	Name    string            `mapstructure:"name"`
	Kind    string            `mapstructure:"kind"`  // static | openai | claude | factcheck
	Class   string            `mapstructure:"class"` // 覆盖 adapter 默认的 provider class
	Enabled *bool             `mapstructure:"enabled"`
	APIKey  string            `mapstructure:"api_key"` // 支持 ${ENV} 与 secret:<key>
	BaseURL string            `mapstructure:"base_url"`
	Model   string            `mapstructure:"model"`
	Cost    float64           `mapstructure:"cost"` // 每次调用的计费单位
	Options map[string]string `mapstructure:"options"`
}

// IsEnabled 未配置 enabled 时默认启用
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// SecretsConfig Secret Store 配置
type SecretsConfig struct {
	Provider string            `mapstructure:"provider"` // env | memory | vault
	Config   map[string]string `mapstructure:"config"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// 内置 tier 名称
const (
	TierQuick    = "quick"
	TierStandard = "standard"
	TierDeep     = "deep"
)

// Default 返回全部字段取默认值的配置
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults 为未配置（零值）字段填充默认值
func (c *Config) ApplyDefaults() {
	if c.API.Port <= 0 {
		c.API.Port = 8080
	}
	p := &c.Pipeline
	if p.MinValidSources <= 0 {
		p.MinValidSources = 2
	}
	if p.MaxConcurrentCalls <= 0 {
		p.MaxConcurrentCalls = 16
	}
	if p.PerSourceTimeout <= 0 {
		p.PerSourceTimeout = 8 * time.Second
	}
	if p.OverallDeadline <= 0 {
		p.OverallDeadline = 30 * time.Second
	}
	// 负数表示关闭重试 / 批次停顿，调用方按 0 处理
	if p.MaxRetries == 0 {
		p.MaxRetries = 2
	}
	if p.RetryBackoff <= 0 {
		p.RetryBackoff = 200 * time.Millisecond
	}
	if p.MaxClaimLength <= 0 {
		p.MaxClaimLength = 2000
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 10
	}
	if p.BatchPause == 0 {
		p.BatchPause = 500 * time.Millisecond
	}

	if c.Circuit.FailureThreshold <= 0 {
		c.Circuit.FailureThreshold = 5
	}
	if c.Circuit.RecoveryTimeout <= 0 {
		c.Circuit.RecoveryTimeout = 30 * time.Second
	}
	if c.Circuit.HalfOpenMaxCalls <= 0 {
		c.Circuit.HalfOpenMaxCalls = 2
	}

	if c.RateLimit.Capacity <= 0 {
		c.RateLimit.Capacity = 5
	}
	if c.RateLimit.RefillPerSec <= 0 {
		c.RateLimit.RefillPerSec = 1
	}

	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = time.Hour
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 10000
	}
	if c.History.Type == "" {
		c.History.Type = "memory"
	}
	if c.History.Retention.ScanInterval <= 0 {
		c.History.Retention.ScanInterval = retention.DefaultConfig().ScanInterval
	}

	if c.Consensus.IntervalBase <= 0 {
		c.Consensus.IntervalBase = 20
	}
	if c.Consensus.IntervalStdFactor <= 0 {
		c.Consensus.IntervalStdFactor = 10
	}

	if c.Tiers == nil {
		c.Tiers = make(map[string]TierConfig)
	}
	defaults := map[string]TierConfig{
		TierQuick:    {MaxSources: 3, Deadline: 10 * time.Second},
		TierStandard: {MaxSources: 6, Deadline: 30 * time.Second},
		TierDeep:     {MaxSources: 12, Deadline: 60 * time.Second},
	}
	for name, def := range defaults {
		t := c.Tiers[name]
		if t.MaxSources <= 0 {
			t.MaxSources = def.MaxSources
		}
		if t.Deadline <= 0 {
			t.Deadline = def.Deadline
		}
		c.Tiers[name] = t
	}

	if c.Secrets.Provider == "" {
		c.Secrets.Provider = "env"
	}
	if c.Monitoring.Tracing.ServiceName == "" {
		c.Monitoring.Tracing.ServiceName = "verify-platform"
	}
}

// LoadConfig 加载配置文件；环境变量 VERIFY_<SECTION>_<KEY> 覆盖文件中的值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("VERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	config.ApplyDefaults()
	return &config, nil
}

// replaceEnvVars 替换 source api_key / cache 密码中的 ${ENV} 引用
func replaceEnvVars(config *Config) {
	for i := range config.Sources {
		config.Sources[i].APIKey = expandEnv(config.Sources[i].APIKey)
	}
	config.Cache.Password = expandEnv(config.Cache.Password)
	config.History.DSN = expandEnv(config.History.DSN)
}

func expandEnv(s string) string {
	if !strings.HasPrefix(s, "$") {
		return s
	}
	envVar := strings.TrimPrefix(strings.TrimSuffix(s, "}"), "${")
	envVar = strings.TrimPrefix(envVar, "$")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return s
}

// LoadAPIConfig 加载 API 配置（configs/api.yaml）
func LoadAPIConfig() (*Config, error) {
	return LoadConfig("configs/api.yaml")
}

// LoadWorkerConfig 加载批处理 Worker 配置（configs/worker.yaml）
func LoadWorkerConfig() (*Config, error) {
	return LoadConfig("configs/worker.yaml")
}
