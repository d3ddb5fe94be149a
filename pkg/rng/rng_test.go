package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat64_MatchesClientStream(t *testing.T) {
	cases := []struct {
		seed int64
		want []float64
	}{
		{seed: 1, want: []float64{0.6270739405881613, 0.002735721180215478, 0.5274470399599522}},
		{seed: 150000001, want: []float64{0.5556504391133785, 0.9333945906255394, 0.36434485763311386}},
	}
	for _, tc := range cases {
		r := New(tc.seed)
		for i, want := range tc.want {
			assert.Equal(t, want, r.Float64(), "seed %d draw %d", tc.seed, i)
		}
	}
}

func TestNew_ZeroSeedActsAsOne(t *testing.T) {
	a, b := New(0), New(1)
	for i := 0; i < 10; i++ {
		require.Equal(t, b.Float64(), a.Float64())
	}
}

func TestNormalizeSeed(t *testing.T) {
	assert.Equal(t, int64(1), NormalizeSeed(0))
	assert.Equal(t, int64(5), NormalizeSeed(5))
	assert.Equal(t, int64(MaxSeed), NormalizeSeed(MaxSeed))
	assert.Equal(t, int64(1), NormalizeSeed(MaxSeed+1))
	assert.Equal(t, int64(7), NormalizeSeed(-7))
}

func TestIntRange_Inclusive(t *testing.T) {
	r := New(99)
	seen := map[int]bool{}
	for i := 0; i < 2000; i++ {
		v := r.IntRange(-5, 5)
		require.GreaterOrEqual(t, v, -5)
		require.LessOrEqual(t, v, 5)
		seen[v] = true
	}
	assert.Len(t, seen, 11)
}

func TestScoped_NestedStreamsAreIndependent(t *testing.T) {
	var outer, inner []float64
	Scoped(7, func(r *Rand) {
		outer = append(outer, r.Float64())
		Scoped(7, func(r2 *Rand) {
			inner = append(inner, r2.Float64(), r2.Float64())
		})
		outer = append(outer, r.Float64())
	})

	ref := New(7)
	assert.Equal(t, []float64{ref.Float64(), ref.Float64()}, outer)
	assert.Equal(t, outer, inner)
}
