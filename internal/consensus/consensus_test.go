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

package consensus

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verify-platform/internal/source"
)

func in(name string, class source.ProviderClass, v source.Verdict, conf float64) Input {
	return Input{Source: name, Class: class, Result: &source.Result{Verdict: v, Confidence: conf}}
}

func TestAggregate_Commutative(t *testing.T) {
	a := New(Config{MinValidSources: 2})
	inputs := []Input{
		in("gpt", source.ClassModel, source.VerdictTrue, 90),
		in("web", source.ClassSearch, source.VerdictFalse, 60),
		in("scholar", source.ClassAcademic, source.VerdictTrue, 80),
	}
	perms := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	want := a.Aggregate(inputs)
	assert.InDelta(t, 1.62/3.3, want.WeightedMean, 1e-12)
	assert.Equal(t, source.VerdictUnverifiable, want.FinalVerdict)
	for _, p := range perms {
		got := a.Aggregate([]Input{inputs[p[0]], inputs[p[1]], inputs[p[2]]})
		assert.Equal(t, want, got, "perm %v", p)
	}
}

func TestAggregate_EndToEndScenario(t *testing.T) {
	a := New(Config{MinValidSources: 2})
	// 第五个来源出错，不进入有效集合
	res := a.Aggregate([]Input{
		in("gpt", source.ClassModel, source.VerdictTrue, 90),
		in("scholar", source.ClassAcademic, source.VerdictTrue, 80),
		in("web", source.ClassSearch, source.VerdictFalse, 60),
		in("wiki", source.ClassKnowledge, source.VerdictUnverifiable, 50),
	})

	require.Equal(t, 4, res.ValidSourceCount)
	assert.InDelta(t, 0.36, res.WeightedMean, 1e-12)
	assert.Equal(t, source.VerdictUnverifiable, res.FinalVerdict)
	assert.Equal(t, source.VerdictTrue, res.ModalVerdict)
	assert.InDelta(t, 50.0, res.AgreementPercentage, 1e-12)

	std := math.Sqrt(1.8243 / 4)
	assert.InDelta(t, std, res.StdDev, 1e-9)
	assert.InDelta(t, 36-std*20, res.Confidence, 1e-9)
	assert.InDelta(t, 22.4933, res.Confidence, 1e-3)

	margin := 20/2.0 + std*10
	assert.InDelta(t, res.Confidence-margin, res.Interval.Lower, 1e-9)
	assert.InDelta(t, res.Confidence+margin, res.Interval.Upper, 1e-9)
	assert.Contains(t, res.Reasoning, "2 TRUE")
}

func TestAggregate_InsufficientSources(t *testing.T) {
	a := New(Config{MinValidSources: 2})

	res := a.Aggregate(nil)
	assert.Equal(t, source.VerdictError, res.FinalVerdict)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, 0, res.ValidSourceCount)
	assert.Equal(t, Interval{}, res.Interval)
	assert.Contains(t, res.Reasoning, ReasonInsufficient)
	assert.True(t, res.IsError())

	res = a.Aggregate([]Input{in("gpt", source.ClassModel, source.VerdictTrue, 99)})
	assert.Equal(t, source.VerdictError, res.FinalVerdict)
	assert.Equal(t, 1, res.ValidSourceCount)
}

func TestAggregate_Thresholds(t *testing.T) {
	a := New(Config{MinValidSources: 1})
	cases := []struct {
		verdict source.Verdict
		conf    float64
		want    source.Verdict
	}{
		{source.VerdictTrue, 51, source.VerdictTrue},
		{source.VerdictTrue, 50, source.VerdictUnverifiable},
		{source.VerdictFalse, 51, source.VerdictFalse},
		{source.VerdictFalse, 50, source.VerdictMisleading},
		{source.VerdictFalse, 21, source.VerdictMisleading},
		{source.VerdictFalse, 20, source.VerdictUnverifiable},
		{source.VerdictMisleading, 100, source.VerdictMisleading},
	}
	for _, tc := range cases {
		res := a.Aggregate([]Input{in("x", source.ClassModel, tc.verdict, tc.conf)})
		assert.Equal(t, tc.want, res.FinalVerdict, "%s@%v", tc.verdict, tc.conf)
	}
}

func TestAggregate_ModalTieBreak(t *testing.T) {
	a := New(Config{MinValidSources: 2})

	res := a.Aggregate([]Input{
		in("a", source.ClassModel, source.VerdictTrue, 50),
		in("b", source.ClassModel, source.VerdictFalse, 90),
	})
	assert.Equal(t, source.VerdictFalse, res.ModalVerdict)
	assert.Equal(t, 50.0, res.AgreementPercentage)

	res = a.Aggregate([]Input{
		in("a", source.ClassModel, source.VerdictMisleading, 70),
		in("b", source.ClassModel, source.VerdictTrue, 70),
	})
	assert.Equal(t, source.VerdictTrue, res.ModalVerdict)
}

func TestAggregate_ClassWeightOverride(t *testing.T) {
	a := New(Config{MinValidSources: 2, ClassWeights: map[source.ProviderClass]float64{source.ClassSearch: 4}})
	res := a.Aggregate([]Input{
		in("a", source.ClassSearch, source.VerdictFalse, 100),
		in("b", source.ClassModel, source.VerdictTrue, 100),
	})
	assert.InDelta(t, -3.0/5.0, res.WeightedMean, 1e-12)
	assert.Equal(t, source.VerdictFalse, res.FinalVerdict)
}

func TestAggregate_Bounds(t *testing.T) {
	a := New(Config{MinValidSources: 1})
	classes := []source.ProviderClass{source.ClassAcademic, source.ClassFactChecker, source.ClassKnowledge, source.ClassSearch, source.ClassModel}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		n := 1 + rng.Intn(12)
		inputs := make([]Input, n)
		for j := range inputs {
			inputs[j] = in(string(rune('a'+j)), classes[rng.Intn(len(classes))],
				source.Verdicts[rng.Intn(len(source.Verdicts))], float64(rng.Intn(101)))
		}
		res := a.Aggregate(inputs)
		require.GreaterOrEqual(t, res.Confidence, 0.0)
		require.LessOrEqual(t, res.Confidence, 100.0)
		require.LessOrEqual(t, res.Interval.Lower, res.Confidence)
		require.GreaterOrEqual(t, res.Interval.Upper, res.Confidence)
		require.GreaterOrEqual(t, res.Interval.Lower, 0.0)
		require.LessOrEqual(t, res.Interval.Upper, 100.0)
	}
}

func TestAggregate_MoreSourcesTighterInterval(t *testing.T) {
	a := New(Config{MinValidSources: 1})
	var inputs []Input
	var widths []float64
	for i := 0; i < 6; i++ {
		inputs = append(inputs, in(string(rune('a'+i)), source.ClassModel, source.VerdictTrue, 60))
		res := a.Aggregate(inputs)
		widths = append(widths, res.Interval.Upper-res.Interval.Lower)
	}
	for i := 1; i < len(widths); i++ {
		assert.LessOrEqual(t, widths[i], widths[i-1])
	}
}
