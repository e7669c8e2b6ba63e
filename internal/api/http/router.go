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
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"verify-platform/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, middleware *middleware.Middleware) *Router {
	return &Router{
		handler:    handler,
		middleware: middleware,
	}
}

// Build 创建 Hertz 实例并注册路由；opts 追加在监听地址之后（如 tracer）
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	opts = append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(opts...)
	r.register(h)
	return h
}

func (r *Router) register(h *server.Hertz) {
	mw := r.middleware
	h.Use(mw.AccessLog(), mw.CORS())

	h.GET("/metrics", r.handler.Metrics)

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)
	api.OPTIONS("/*path", func(ctx context.Context, c *app.RequestContext) {
		c.Status(consts.StatusNoContent)
	})

	// 核查
	// stream 的响应体在 handler 返回后才写出，不能挂 Timeout
	verify := api.Group("/verify", mw.RateLimit())
	{
		verify.POST("", mw.Timeout(), r.handler.Verify)
		verify.POST("/stream", r.handler.VerifyStream)
		verify.POST("/batch", mw.Timeout(), r.handler.VerifyBatch)
	}

	// 数据源状态
	sources := api.Group("/sources")
	{
		sources.GET("", r.handler.ListSources)
		sources.POST("/:name/reset", r.handler.ResetSource)
	}

	// 历史记录
	verifications := api.Group("/verifications")
	{
		verifications.GET("", r.handler.ListVerifications)
		verifications.GET("/:id", r.handler.GetVerification)
	}
}
