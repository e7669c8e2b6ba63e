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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"verify-platform/internal/breaker"
	"verify-platform/internal/consensus"
	"verify-platform/internal/pipeline"
	"verify-platform/internal/ratelimit"
	"verify-platform/internal/source"
	"verify-platform/internal/storage/history"
	"verify-platform/pkg/errors"
	"verify-platform/pkg/metrics"
)

const (
	maxBatchClaims     = 1000
	defaultHistoryList = 20
	maxHistoryList     = 200

	headerCorrelationID = "X-Correlation-ID"
)

// Handler HTTP 处理器
type Handler struct {
	pipeline *pipeline.Pipeline
	registry *source.Registry
	breakers *breaker.Registry
	limiter  *ratelimit.Limiter
	history  history.Store
}

// NewHandler 创建处理器；history 可为 nil（此时查询接口返回 404）
func NewHandler(p *pipeline.Pipeline, registry *source.Registry, breakers *breaker.Registry, limiter *ratelimit.Limiter, hist history.Store) *Handler {
	return &Handler{
		pipeline: p,
		registry: registry,
		breakers: breakers,
		limiter:  limiter,
		history:  hist,
	}
}

// VerifyRequest 单条核查请求体
type VerifyRequest struct {
	Claim         string            `json:"claim"`
	Context       map[string]string `json:"context,omitempty"`
	Tier          string            `json:"tier,omitempty"`
	Sources       []string          `json:"sources,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

// BatchRequest 批量核查请求体
type BatchRequest struct {
	Claims    []string `json:"claims"`
	BatchSize int      `json:"batch_size,omitempty"`
	Tier      string   `json:"tier,omitempty"`
	Sources   []string `json:"sources,omitempty"`
}

// SourceStatus 数据源运行状态
type SourceStatus struct {
	Name      string             `json:"name"`
	Class     string             `json:"class"`
	Weight    float64            `json:"weight"`
	Circuit   breaker.Snapshot   `json:"circuit"`
	RateLimit ratelimit.Snapshot `json:"rate_limit"`
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	n := 0
	if h.registry != nil {
		n = len(h.registry.List())
	}
	c.JSON(consts.StatusOK, utils.H{
		"status":  "ok",
		"sources": n,
	})
}

// Verify 阻塞式核查
// POST /api/verify
func (h *Handler) Verify(ctx context.Context, c *app.RequestContext) {
	var body VerifyRequest
	if err := c.BindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	req, adapters, ok := h.prepare(c, body)
	if !ok {
		return
	}

	res, err := h.pipeline.Verify(ctx, req, adapters)
	if err != nil {
		h.writeError(ctx, c, err)
		return
	}
	c.Header(headerCorrelationID, req.CorrelationID)
	c.JSON(consts.StatusOK, res)
}

// VerifyStream 流式核查，逐行输出 JSON 事件（application/x-ndjson）
// POST /api/verify/stream
func (h *Handler) VerifyStream(ctx context.Context, c *app.RequestContext) {
	var body VerifyRequest
	if err := c.BindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	req, adapters, ok := h.prepare(c, body)
	if !ok {
		return
	}

	events, err := h.pipeline.StreamVerify(ctx, req, adapters)
	if err != nil {
		h.writeError(ctx, c, err)
		return
	}

	pr, pw := io.Pipe()
	go func() {
		enc := json.NewEncoder(pw)
		for e := range events {
			if err := enc.Encode(e); err != nil {
				// 客户端已断开，剩余事件由 pipeline 丢弃
				pw.CloseWithError(err)
				return
			}
		}
		pw.Close()
	}()

	c.Header(headerCorrelationID, req.CorrelationID)
	c.SetContentType("application/x-ndjson")
	c.SetBodyStream(pr, -1)
}

// VerifyBatch 批量核查，结果与 claims 一一对应
// POST /api/verify/batch
func (h *Handler) VerifyBatch(ctx context.Context, c *app.RequestContext) {
	var body BatchRequest
	if err := c.BindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if len(body.Claims) == 0 {
		badRequest(c, "claims is required")
		return
	}
	if len(body.Claims) > maxBatchClaims {
		badRequest(c, "too many claims: "+strconv.Itoa(len(body.Claims))+" > "+strconv.Itoa(maxBatchClaims))
		return
	}

	tierName, tier := h.pipeline.Tier(body.Tier)
	adapters, err := h.registry.Select(tier.MaxSources, body.Sources...)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	results := h.pipeline.BatchVerify(ctx, body.Claims, body.BatchSize, tierName, adapters)
	c.JSON(consts.StatusOK, utils.H{
		"results": results,
		"count":   len(results),
	})
}

// ListSources 列出数据源及其熔断器、令牌桶状态
// GET /api/sources
func (h *Handler) ListSources(ctx context.Context, c *app.RequestContext) {
	weights := h.registry.ClassWeights()
	adapters := h.registry.List()
	out := make([]SourceStatus, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, SourceStatus{
			Name:      a.Name(),
			Class:     string(a.Class()),
			Weight:    weights[a.Class()],
			Circuit:   h.breakers.State(a.Name()),
			RateLimit: h.limiter.Snapshot(a.Name()),
		})
	}
	c.JSON(consts.StatusOK, utils.H{"sources": out})
}

// ResetSource 强制将数据源熔断器恢复为 CLOSED
// POST /api/sources/:name/reset
func (h *Handler) ResetSource(ctx context.Context, c *app.RequestContext) {
	name := c.Param("name")
	if _, ok := h.registry.Get(name); !ok {
		c.JSON(consts.StatusNotFound, utils.H{"error": "source not found: " + name})
		return
	}
	h.breakers.Reset(name)
	hlog.CtxInfof(ctx, "circuit reset by api: source=%s", name)
	c.JSON(consts.StatusOK, h.breakers.State(name))
}

// GetVerification 按 ID 查询历史核查结果
// GET /api/verifications/:id
func (h *Handler) GetVerification(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	if h.history == nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "verification not found"})
		return
	}
	res, err := h.history.Get(ctx, id)
	if err != nil {
		hlog.CtxErrorf(ctx, "history get %s failed: %v", id, err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "failed to load verification"})
		return
	}
	if res == nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "verification not found"})
		return
	}
	c.JSON(consts.StatusOK, res)
}

// ListVerifications 最近的核查结果
// GET /api/verifications?limit=N
func (h *Handler) ListVerifications(ctx context.Context, c *app.RequestContext) {
	limit := defaultHistoryList
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryList)
	}
	var results []*consensus.Result
	if h.history != nil {
		var err error
		results, err = h.history.List(ctx, limit)
		if err != nil {
			hlog.CtxErrorf(ctx, "history list failed: %v", err)
			c.JSON(consts.StatusInternalServerError, utils.H{"error": "failed to list verifications"})
			return
		}
	}
	if results == nil {
		results = []*consensus.Result{}
	}
	c.JSON(consts.StatusOK, utils.H{"results": results})
}

// Metrics Prometheus 文本格式
// GET /metrics
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		hlog.CtxErrorf(ctx, "write metrics failed: %v", err)
		c.String(consts.StatusInternalServerError, "%v", err)
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// prepare 组装 Request 并选出本次参与的数据源；失败时已写入 400
func (h *Handler) prepare(c *app.RequestContext, body VerifyRequest) (source.Request, []source.Adapter, bool) {
	corrID := body.CorrelationID
	if corrID == "" {
		corrID = string(c.GetHeader(headerCorrelationID))
	}
	tierName, tier := h.pipeline.Tier(body.Tier)
	adapters, err := h.registry.Select(tier.MaxSources, body.Sources...)
	if err != nil {
		badRequest(c, err.Error())
		return source.Request{}, nil, false
	}
	return source.NewRequest(body.Claim, body.Context, tierName, corrID), adapters, true
}

func (h *Handler) writeError(ctx context.Context, c *app.RequestContext, err error) {
	switch {
	case errors.Is(err, errors.ErrInvalidArg):
		badRequest(c, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(consts.StatusGatewayTimeout, utils.H{"error": err.Error()})
	default:
		hlog.CtxErrorf(ctx, "verify failed: %v", err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
	}
}

func badRequest(c *app.RequestContext, msg string) {
	c.JSON(consts.StatusBadRequest, utils.H{"error": msg})
}
