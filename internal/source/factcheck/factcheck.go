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

// Package factcheck 通过 Google Fact Check Tools claims:search 查询已有的人工核查结论。
package factcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"verify-platform/internal/source"
	"verify-platform/pkg/config"
)

const defaultBaseURL = "https://factchecktools.googleapis.com/v1alpha1"

// Client Fact Check Tools adapter
type Client struct {
	name     string
	apiKey   string
	baseURL  string
	language string
	pageSize int
	cost     float64
	client   *resty.Client
}

// New 创建 adapter
func New(name, apiKey, baseURL string, cost float64) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		name:     name,
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: 10,
		cost:     cost,
		client:   resty.New().SetRetryCount(0),
	}
}

// Factory options: language, page_size
func Factory(_ context.Context, cfg config.SourceConfig) (source.Adapter, error) {
	c := New(cfg.Name, cfg.APIKey, cfg.BaseURL, cfg.Cost)
	c.language = cfg.Options["language"]
	if ps := cfg.Options["page_size"]; ps != "" {
		n, err := strconv.Atoi(ps)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("page_size: invalid value %q", ps)
		}
		c.pageSize = n
	}
	return c, nil
}

func (c *Client) Name() string                { return c.name }
func (c *Client) Class() source.ProviderClass { return source.ClassFactChecker }

type searchResponse struct {
	Claims []struct {
		Text        string `json:"text"`
		ClaimReview []struct {
			Publisher struct {
				Name string `json:"name"`
			} `json:"publisher"`
			URL           string `json:"url"`
			TextualRating string `json:"textualRating"`
		} `json:"claimReview"`
	} `json:"claims"`
}

// Call 查询 claims:search，将各家 textualRating 投票为一个结论
func (c *Client) Call(ctx context.Context, claim string, _ map[string]string, deadline time.Duration) (*source.Result, error) {
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}
	start := time.Now()

	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("query", claim).
		SetQueryParam("key", c.apiKey).
		SetQueryParam("pageSize", strconv.Itoa(c.pageSize))
	if c.language != "" {
		req.SetQueryParam("languageCode", c.language)
	}
	response, err := req.Get(c.baseURL + "/claims:search")
	if err != nil {
		return nil, source.Classify(c.name, err)
	}
	if response.StatusCode() != http.StatusOK {
		kind := source.KindTransport
		if code := response.StatusCode(); code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			kind = source.KindInvalid
		}
		return nil, &source.Error{Kind: kind, Source: c.name, Cause: fmt.Sprintf("status %d", response.StatusCode())}
	}

	var body searchResponse
	if err := json.Unmarshal(response.Body(), &body); err != nil {
		return nil, &source.Error{Kind: source.KindInvalid, Source: c.name, Cause: err.Error()}
	}

	votes := make(map[source.Verdict]int)
	var evidence, notes []string
	total := 0
	for _, cl := range body.Claims {
		for _, review := range cl.ClaimReview {
			v, ok := RatingVerdict(review.TextualRating)
			if !ok {
				continue
			}
			votes[v]++
			total++
			if review.URL != "" {
				evidence = append(evidence, review.URL)
			}
			notes = append(notes, fmt.Sprintf("%s: %s", review.Publisher.Name, review.TextualRating))
		}
	}

	res := &source.Result{Cost: c.cost, Evidence: evidence}
	if total == 0 {
		res.Verdict = source.VerdictUnverifiable
		res.Confidence = 20
		res.Reasoning = "no published fact-checks matched the claim"
	} else {
		best, n := source.VerdictUnverifiable, 0
		for _, v := range source.Verdicts {
			if votes[v] > n {
				best, n = v, votes[v]
			}
		}
		share := float64(n) / float64(total)
		// 样本越多越可信，上限 95
		conf := (50 + 10*float64(n)) * share
		if conf > 95 {
			conf = 95
		}
		res.Verdict = best
		res.Confidence = conf
		res.Reasoning = strings.Join(notes, "; ")
	}
	res.LatencyMs = time.Since(start).Milliseconds()
	res.Normalize()
	return res, nil
}

// RatingVerdict 将核查机构的文字评级映射为结论
func RatingVerdict(rating string) (source.Verdict, bool) {
	r := strings.ToLower(strings.TrimSpace(rating))
	switch {
	case r == "":
		return "", false
	case strings.Contains(r, "pants on fire"), strings.HasPrefix(r, "false"),
		strings.Contains(r, "incorrect"), strings.Contains(r, "fake"), strings.Contains(r, "hoax"):
		return source.VerdictFalse, true
	case strings.Contains(r, "mostly false"), strings.Contains(r, "half"), strings.Contains(r, "mixture"),
		strings.Contains(r, "misleading"), strings.Contains(r, "partly"), strings.Contains(r, "out of context"),
		strings.Contains(r, "exaggerat"), strings.Contains(r, "missing context"):
		return source.VerdictMisleading, true
	case strings.Contains(r, "unproven"), strings.Contains(r, "unverified"), strings.Contains(r, "unsupported"):
		return source.VerdictUnverifiable, true
	case strings.HasPrefix(r, "true"), strings.Contains(r, "mostly true"), strings.Contains(r, "correct"),
		strings.Contains(r, "accurate"):
		return source.VerdictTrue, true
	}
	return "", false
}
