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

package factcheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verify-platform/internal/source"
	"verify-platform/pkg/config"
)

func TestRatingVerdict(t *testing.T) {
	cases := map[string]source.Verdict{
		"False":           source.VerdictFalse,
		"Pants on Fire!":  source.VerdictFalse,
		"Mostly False":    source.VerdictMisleading,
		"Half True":       source.VerdictMisleading,
		"Missing context": source.VerdictMisleading,
		"Unproven":        source.VerdictUnverifiable,
		"True":            source.VerdictTrue,
		"Mostly True":     source.VerdictTrue,
	}
	for in, want := range cases {
		got, ok := RatingVerdict(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := RatingVerdict("satire")
	assert.False(t, ok)
}

func TestClient_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/claims:search", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		assert.Equal(t, "the moon is cheese", r.URL.Query().Get("query"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"claims":[{"text":"moon cheese","claimReview":[
			{"publisher":{"name":"A"},"url":"https://a.example/1","textualRating":"False"},
			{"publisher":{"name":"B"},"url":"https://b.example/2","textualRating":"Pants on Fire"},
			{"publisher":{"name":"C"},"url":"https://c.example/3","textualRating":"Half True"}]}]}`))
	}))
	defer srv.Close()

	a, err := Factory(context.Background(), config.SourceConfig{Name: "gfc", APIKey: "k", BaseURL: srv.URL, Cost: 0.01})
	require.NoError(t, err)
	assert.Equal(t, source.ClassFactChecker, a.Class())

	res, err := a.Call(context.Background(), "the moon is cheese", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, source.VerdictFalse, res.Verdict)
	assert.InDelta(t, 70.0*2/3, res.Confidence, 1e-9)
	assert.Len(t, res.Evidence, 3)
	assert.Equal(t, 0.01, res.Cost)
	require.NoError(t, res.Validate())
}

func TestClient_NoMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	res, err := New("gfc", "k", srv.URL, 0).Call(context.Background(), "x", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, source.VerdictUnverifiable, res.Verdict)
}

func TestClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "bad" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var se *source.Error
	_, err := New("gfc", "bad", srv.URL, 0).Call(context.Background(), "x", nil, time.Second)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, source.KindInvalid, se.Kind)

	_, err = New("gfc", "ok", srv.URL, 0).Call(context.Background(), "x", nil, time.Second)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, source.KindTransport, se.Kind)
}

func TestFactory_BadPageSize(t *testing.T) {
	_, err := Factory(context.Background(), config.SourceConfig{Name: "gfc", Options: map[string]string{"page_size": "zero"}})
	assert.Error(t, err)
}
