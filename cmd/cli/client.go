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
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	apihttp "verify-platform/internal/api/http"
	"verify-platform/internal/consensus"
	"verify-platform/internal/pipeline"
)

func apiBaseURL() string {
	if u := os.Getenv("VERIFY_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

// client 校验 API 客户端
type client struct {
	rc *resty.Client
}

func newClient(baseURL string) *client {
	return &client{rc: resty.New().
		SetBaseURL(baseURL).
		SetTimeout(2*time.Minute).
		SetHeader("Content-Type", "application/json").
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			r.ForceContentType("application/json")
			return nil
		})}
}

func apiError(method, path string, resp *resty.Response) error {
	return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode(), resp.String())
}

func (c *client) health() (map[string]any, error) {
	var out map[string]any
	resp, err := c.rc.R().SetResult(&out).Get("/api/health")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError("GET", "/api/health", resp)
	}
	return out, nil
}

func (c *client) verify(req apihttp.VerifyRequest) (*consensus.Result, error) {
	var out consensus.Result
	resp, err := c.rc.R().SetBody(req).SetResult(&out).Post("/api/verify")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError("POST", "/api/verify", resp)
	}
	return &out, nil
}

// verifyStream 逐个回调流式事件，直到 complete 或连接结束
func (c *client) verifyStream(req apihttp.VerifyRequest, fn func(pipeline.Event)) error {
	resp, err := c.rc.R().SetBody(req).SetDoNotParseResponse(true).Post("/api/verify/stream")
	if err != nil {
		return err
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("POST /api/verify/stream: %d", resp.StatusCode())
	}

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var e pipeline.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		fn(e)
	}
	return sc.Err()
}

func (c *client) batch(req apihttp.BatchRequest) ([]*consensus.Result, error) {
	var out struct {
		Results []*consensus.Result `json:"results"`
	}
	resp, err := c.rc.R().SetBody(req).SetResult(&out).Post("/api/verify/batch")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError("POST", "/api/verify/batch", resp)
	}
	return out.Results, nil
}

func (c *client) sources() ([]apihttp.SourceStatus, error) {
	var out struct {
		Sources []apihttp.SourceStatus `json:"sources"`
	}
	resp, err := c.rc.R().SetResult(&out).Get("/api/sources")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError("GET", "/api/sources", resp)
	}
	return out.Sources, nil
}

func (c *client) resetSource(name string) error {
	path := "/api/sources/" + name + "/reset"
	resp, err := c.rc.R().Post(path)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return apiError("POST", path, resp)
	}
	return nil
}

func (c *client) verification(id string) (*consensus.Result, error) {
	var out consensus.Result
	path := "/api/verifications/" + id
	resp, err := c.rc.R().SetResult(&out).Get(path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError("GET", path, resp)
	}
	return &out, nil
}

func (c *client) history(limit int) ([]*consensus.Result, error) {
	var out struct {
		Results []*consensus.Result `json:"results"`
	}
	resp, err := c.rc.R().
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&out).
		Get("/api/verifications")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError("GET", "/api/verifications", resp)
	}
	return out.Results, nil
}
