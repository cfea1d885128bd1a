package safety

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/safespacefinder/safespace/internal/domain"
)

func signals(ratings []int, verified ...bool) []ReviewSignal {
	out := make([]ReviewSignal, len(ratings))
	for i, r := range ratings {
		out[i] = ReviewSignal{Rating: r, Status: domain.ReviewStatusApproved}
		if i < len(verified) {
			out[i].Verified = verified[i]
		}
	}
	return out
}

func TestCompute_Empty(t *testing.T) {
	assert.Equal(t, domain.Aggregate{}, Compute(nil))
	assert.Equal(t, domain.Aggregate{}, Compute([]ReviewSignal{}))
}

func TestAnalyze_Scenarios(t *testing.T) {
	tests := []struct {
		name          string
		in            []ReviewSignal
		want          domain.Aggregate
		positiveRatio float64
		negativeRatio float64
		rawScore      float64
		verifiedBonus float64
	}{
		{
			name:          "two verified fives clamp at 100",
			in:            signals([]int{5, 5}, true, true),
			want:          domain.Aggregate{SafetyScore: 100, AverageRating: 5.0, TotalReviews: 2},
			positiveRatio: 1,
			rawScore:      100,
			verifiedBonus: 10,
		},
		{
			name:          "mostly negative unverified",
			in:            signals([]int{1, 1, 5}),
			want:          domain.Aggregate{SafetyScore: 13, AverageRating: 2.3, TotalReviews: 3},
			positiveRatio: 1.0 / 3,
			negativeRatio: 2.0 / 3,
			rawScore:      100.0/3 - 20,
		},
		{
			name:          "single verified three",
			in:            signals([]int{3}, true),
			want:          domain.Aggregate{SafetyScore: 10, AverageRating: 3.0, TotalReviews: 1},
			verifiedBonus: 10,
		},
		{
			name: "single unverified three",
			in:   signals([]int{3}),
			want: domain.Aggregate{SafetyScore: 0, AverageRating: 3.0, TotalReviews: 1},
		},
		{
			name:          "ten reviews eight positive one negative all verified",
			in:            signals([]int{5, 5, 4, 4, 5, 4, 5, 4, 3, 1}, true, true, true, true, true, true, true, true, true, true),
			want:          domain.Aggregate{SafetyScore: 87, AverageRating: 4.0, TotalReviews: 10},
			positiveRatio: 0.8,
			negativeRatio: 0.1,
			rawScore:      77,
			verifiedBonus: 10,
		},
		{
			name:          "all negative clamps at zero",
			in:            signals([]int{1, 2}, true),
			want:          domain.Aggregate{SafetyScore: 0, AverageRating: 1.5, TotalReviews: 2},
			negativeRatio: 1,
			rawScore:      -30,
			verifiedBonus: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Analyze(tt.in)
			assert.Equal(t, tt.want, b.Aggregate)
			assert.InDelta(t, tt.positiveRatio, b.PositiveRatio, 1e-9)
			assert.InDelta(t, tt.negativeRatio, b.NegativeRatio, 1e-9)
			assert.InDelta(t, tt.rawScore, b.RawScore, 1e-9)
			assert.InDelta(t, tt.verifiedBonus, b.VerifiedBonus, 1e-9)
		})
	}
}

func TestCompute_RoundsHalfUp(t *testing.T) {
	// 47/20 = 2.35 exactly.
	ratings := make([]int, 0, 20)
	for range 7 {
		ratings = append(ratings, 3)
	}
	for range 13 {
		ratings = append(ratings, 2)
	}
	assert.Equal(t, 2.35, float64(47)/20)
	assert.Equal(t, 2.4, Compute(signals(ratings)).AverageRating)

	// Score 12.5 rounds up: 1 positive, 7 neutral, no negatives -> 100/8.
	assert.Equal(t, 13, Compute(signals([]int{5, 3, 3, 3, 3, 3, 3, 3})).SafetyScore)

	// 4.25 -> 4.3
	assert.Equal(t, 4.3, Compute(signals([]int{5, 4, 4, 4})).AverageRating)
}

func TestCompute_IgnoresStatus(t *testing.T) {
	in := []ReviewSignal{
		{Rating: 5, Status: domain.ReviewStatusRejected},
		{Rating: 5, Status: domain.ReviewStatusApproved},
	}
	assert.Equal(t, 2, Compute(in).TotalReviews)
}

func randomSignals(r *rand.Rand) []ReviewSignal {
	n := r.IntN(40)
	out := make([]ReviewSignal, n)
	for i := range out {
		out[i] = ReviewSignal{Rating: 1 + r.IntN(5), Verified: r.IntN(2) == 0}
	}
	return out
}

func TestCompute_Bounds(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for range 2000 {
		in := randomSignals(r)
		got := Compute(in)

		assert.GreaterOrEqual(t, got.SafetyScore, 0)
		assert.LessOrEqual(t, got.SafetyScore, 100)
		assert.GreaterOrEqual(t, got.AverageRating, 0.0)
		assert.LessOrEqual(t, got.AverageRating, 5.0)
		assert.Equal(t, len(in), got.TotalReviews)
		if len(in) > 0 {
			assert.GreaterOrEqual(t, got.AverageRating, 1.0)
		}
	}
}

func TestCompute_VerifiedBonusIsMonotonic(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for range 500 {
		in := randomSignals(r)
		for i := range in {
			in[i].Verified = false
		}

		prev := Compute(in).SafetyScore
		for _, i := range r.Perm(len(in)) {
			in[i].Verified = true
			next := Compute(in).SafetyScore
			assert.GreaterOrEqual(t, next, prev)
			prev = next
		}
	}
}

func TestCompute_Deterministic(t *testing.T) {
	in := signals([]int{4, 2, 5, 3, 1}, true, false, true)
	assert.Equal(t, Compute(in), Compute(in))
}
