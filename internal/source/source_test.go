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

package source

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verify-platform/pkg/config"
	"verify-platform/pkg/errors"
	"verify-platform/pkg/secrets"
)

func TestParseVerdict(t *testing.T) {
	cases := map[string]Verdict{
		"true":           VerdictTrue,
		" False ":        VerdictFalse,
		"partially true": VerdictMisleading,
		"half-true":      VerdictMisleading,
		"UNVERIFIABLE":   VerdictUnverifiable,
	}
	for in, want := range cases {
		got, err := ParseVerdict(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseVerdict("banana")
	assert.Error(t, err)
	assert.False(t, VerdictError.Valid())
}

func TestResult_ValidateAndNormalize(t *testing.T) {
	ok := &Result{Verdict: VerdictTrue, Confidence: 90}
	require.NoError(t, ok.Validate())

	bad := []*Result{
		nil,
		{Verdict: "MAYBE", Confidence: 10},
		{Verdict: VerdictTrue, Confidence: 101},
		{Verdict: VerdictTrue, Confidence: -1},
		{Verdict: VerdictTrue, Confidence: 10, Cost: -0.1},
		{Verdict: VerdictTrue, Confidence: 10, LatencyMs: -5},
	}
	for i, r := range bad {
		assert.Error(t, r.Validate(), "case %d", i)
	}

	long := &Result{Verdict: VerdictFalse, Reasoning: strings.Repeat("界", MaxReasoningRunes+10)}
	for i := 0; i < MaxEvidence+5; i++ {
		long.Evidence = append(long.Evidence, fmt.Sprintf("https://example.org/%d", i))
	}
	long.Normalize()
	assert.Equal(t, MaxReasoningRunes, len([]rune(long.Reasoning)))
	assert.Len(t, long.Evidence, MaxEvidence)
}

func TestClassify(t *testing.T) {
	se := Classify("a", &Error{Kind: KindInvalid, Cause: "bad json"})
	assert.Equal(t, KindInvalid, se.Kind)
	assert.Equal(t, "a", se.Source)

	assert.Equal(t, KindTimeout, Classify("a", fmt.Errorf("call: %w", context.DeadlineExceeded)).Kind)
	assert.Equal(t, KindTransport, Classify("a", stderrors.New("connection refused")).Kind)
	assert.Nil(t, Classify("a", nil))

	assert.True(t, (&Error{Kind: KindTimeout}).Retryable())
	assert.False(t, (&Error{Kind: KindCircuitOpen}).Retryable())
}

func TestRequest(t *testing.T) {
	ctxMap := map[string]string{"lang": "en"}
	req := NewRequest("  The sky is blue ", ctxMap, "quick", "")
	ctxMap["lang"] = "fr"

	assert.Equal(t, "The sky is blue", req.Claim)
	assert.Equal(t, "en", req.Context["lang"])
	assert.NotEmpty(t, req.CorrelationID)
	require.NoError(t, req.Validate(2000))

	err := NewRequest("   ", nil, "", "id").Validate(2000)
	assert.True(t, errors.Is(err, errors.ErrInvalidArg))

	err = NewRequest(strings.Repeat("x", 3000), nil, "", "id").Validate(2000)
	require.Error(t, err)
	assert.Equal(t, "invalid argument: claim length 3000 exceeds 2000", err.Error())
}

func TestRegistry_BuildAndSelect(t *testing.T) {
	store := secrets.NewMemoryStore(nil)
	require.NoError(t, store.Set(context.Background(), "key", "resolved"))

	reg := NewRegistry(store, nil)
	var seenKey string
	reg.RegisterFactory("static", StaticFactory)
	reg.RegisterFactory("capture", func(ctx context.Context, cfg config.SourceConfig) (Adapter, error) {
		seenKey = cfg.APIKey
		return NewStatic(cfg.Name, ClassSearch, Result{Verdict: VerdictTrue, Confidence: 10}, 0), nil
	})

	disabled := false
	err := reg.Build(context.Background(), []config.SourceConfig{
		{Name: "m1", Kind: "static", Options: map[string]string{"verdict": "true", "confidence": "90"}},
		{Name: "fc", Kind: "static", Class: "fact_checker"},
		{Name: "s1", Kind: "capture", APIKey: "secret:key"},
		{Name: "off", Kind: "static", Enabled: &disabled},
	})
	require.NoError(t, err)
	assert.Equal(t, "resolved", seenKey)

	fc, ok := reg.Get("fc")
	require.True(t, ok)
	assert.Equal(t, ClassFactChecker, fc.Class())
	_, ok = reg.Get("off")
	assert.False(t, ok)

	all, err := reg.Select(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"fc", "m1", "s1"}, names(all))

	top, err := reg.Select(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"fc", "m1"}, names(top))

	picked, err := reg.Select(0, "s1", "m1", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "m1"}, names(picked))

	_, err = reg.Select(0, "nope")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	require.NoError(t, reg.SetClassWeights(map[string]float64{"search": 3}))
	all, _ = reg.Select(0)
	assert.Equal(t, "s1", all[0].Name())
	assert.Error(t, reg.SetClassWeights(map[string]float64{"astrology": 1}))
}

func TestRegistry_BuildErrors(t *testing.T) {
	reg := NewRegistry(nil, nil)
	reg.RegisterFactory("static", StaticFactory)

	err := reg.Build(context.Background(), []config.SourceConfig{{Name: "x", Kind: "carrier-pigeon"}})
	assert.True(t, errors.Is(err, errors.ErrUnsupported))

	err = reg.Build(context.Background(), []config.SourceConfig{{Name: "x", Kind: "static", APIKey: "secret:k"}})
	assert.Error(t, err)

	require.NoError(t, reg.Build(context.Background(), []config.SourceConfig{{Name: "dup", Kind: "static"}}))
	err = reg.Build(context.Background(), []config.SourceConfig{{Name: "dup", Kind: "static"}})
	assert.True(t, errors.Is(err, errors.ErrInvalidArg))
}

func TestStatic_Call(t *testing.T) {
	a := NewStatic("s", ClassModel, Result{Verdict: VerdictTrue, Confidence: 80, Evidence: []string{"e"}}, 5*time.Millisecond)
	r, err := a.Call(context.Background(), "c", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, VerdictTrue, r.Verdict)
	r.Evidence[0] = "mutated"
	r2, _ := a.Call(context.Background(), "c", nil, time.Second)
	assert.Equal(t, "e", r2.Evidence[0])

	slow := NewStatic("slow", ClassModel, Result{Verdict: VerdictTrue}, time.Hour)
	_, err = slow.Call(context.Background(), "c", nil, 10*time.Millisecond)
	var se *Error
	require.True(t, stderrors.As(err, &se))
	assert.Equal(t, KindTimeout, se.Kind)

	broken := NewStatic("b", ClassModel, Result{Verdict: VerdictTrue}, 0).Failing(KindTransport)
	_, err = broken.Call(context.Background(), "c", nil, time.Second)
	require.True(t, stderrors.As(err, &se))
	assert.Equal(t, KindTransport, se.Kind)
}

func names(as []Adapter) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.Name()
	}
	return out
}
