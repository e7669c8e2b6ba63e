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

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verify-platform/internal/source"
)

type fakeChat struct {
	reply string
	err   error
	got   []*schema.Message
}

func (f *fakeChat) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.got = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChat) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestParseReply(t *testing.T) {
	res, err := parseReply("m", "Sure!\n```json\n{\"verdict\":\"false\",\"confidence\":72,\"reasoning\":\"no\",\"evidence\":[\"u\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, source.VerdictFalse, res.Verdict)
	assert.Equal(t, 72.0, res.Confidence)
	assert.Equal(t, []string{"u"}, res.Evidence)

	var se *source.Error
	_, err = parseReply("m", "I think it is true")
	require.True(t, errors.As(err, &se))
	assert.Equal(t, source.KindInvalid, se.Kind)

	_, err = parseReply("m", `{"verdict":"probably","confidence":10}`)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, source.KindInvalid, se.Kind)
}

func TestBuildPrompt(t *testing.T) {
	p := buildPrompt("water is wet", map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, "Claim: water is wet\nContext:\n- a: 1\n- b: 2", p)
}

func TestOpenAI_Call(t *testing.T) {
	chat := &fakeChat{reply: `{"verdict":"TRUE","confidence":91,"reasoning":"well known"}`}
	a := NewOpenAI("gpt", 0.002, chat)

	res, err := a.Call(context.Background(), "water is wet", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, source.VerdictTrue, res.Verdict)
	assert.Equal(t, 0.002, res.Cost)
	require.Len(t, chat.got, 2)
	assert.Equal(t, schema.System, chat.got[0].Role)
	assert.Contains(t, chat.got[1].Content, "water is wet")

	chat.err = context.DeadlineExceeded
	_, err = a.Call(context.Background(), "water is wet", nil, time.Second)
	var se *source.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, source.KindTimeout, se.Kind)
}

func TestClaude_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, systemPrompt, body["system"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"verdict\":\"MISLEADING\",\"confidence\":64,\"reasoning\":\"partly\"}"}]}`))
	}))
	defer srv.Close()

	a := NewClaude("claude", "", "k", srv.URL, 0.01)
	res, err := a.Call(context.Background(), "c", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, source.VerdictMisleading, res.Verdict)
	assert.Equal(t, 64.0, res.Confidence)
	assert.Equal(t, 0.01, res.Cost)
}

func TestClaude_StatusErrors(t *testing.T) {
	codes := map[int]source.ErrorKind{
		http.StatusUnauthorized:       source.KindInvalid,
		http.StatusTooManyRequests:    source.KindTransport,
		http.StatusServiceUnavailable: source.KindTransport,
	}
	for code, want := range codes {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(strings.Repeat("e", 500)))
		}))
		_, err := NewClaude("claude", "", "k", srv.URL, 0).Call(context.Background(), "c", nil, time.Second)
		srv.Close()

		var se *source.Error
		require.True(t, errors.As(err, &se), "code %d", code)
		assert.Equal(t, want, se.Kind, "code %d", code)
		assert.LessOrEqual(t, len(se.Cause), 220)
	}
}

func TestClaude_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	_, err := NewClaude("claude", "", "k", srv.URL, 0).Call(context.Background(), "c", nil, 20*time.Millisecond)
	var se *source.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, source.KindTimeout, se.Kind)
}
