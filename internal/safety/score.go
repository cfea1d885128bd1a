// Package safety maintains the derived safety score, average rating and
// review count of a business.
package safety

import (
	"github.com/safespacefinder/safespace/internal/domain"
)

// Scoring weights. A review rated PositiveMin or higher counts as positive,
// one rated NegativeMax or lower as negative.
const (
	PositiveMin    = 4
	NegativeMax    = 2
	PositiveWeight = 100
	NegativeWeight = 30
	VerifiedWeight = 10
	MaxScore       = 100
)

// ReviewSignal is the part of a review the score depends on.
type ReviewSignal struct {
	Rating   int
	Verified bool
	Status   domain.ReviewStatus
}

// SignalOf extracts the scoring signal of r.
func SignalOf(r domain.Review) ReviewSignal {
	return ReviewSignal{Rating: r.Rating, Verified: r.Verified, Status: r.Status}
}

// Breakdown is the full derivation of an Aggregate.
type Breakdown struct {
	domain.Aggregate
	Positive      int
	Negative      int
	Verified      int
	PositiveRatio float64
	NegativeRatio float64
	VerifiedRatio float64
	RawScore      float64
	VerifiedBonus float64
}

// Compute derives the aggregate of signals.
func Compute(signals []ReviewSignal) domain.Aggregate {
	return Analyze(signals).Aggregate
}

// Analyze derives the aggregate of signals along with its intermediate
// ratios. An empty set yields all zeros.
//
// Both roundings are half-up and done in integer arithmetic so values such
// as 2.35 cannot land on the wrong side of the boundary through float error.
func Analyze(signals []ReviewSignal) Breakdown {
	n := len(signals)
	if n == 0 {
		return Breakdown{}
	}

	var b Breakdown
	sum := 0
	for _, s := range signals {
		sum += s.Rating
		switch {
		case s.Rating >= PositiveMin:
			b.Positive++
		case s.Rating <= NegativeMax:
			b.Negative++
		}
		if s.Verified {
			b.Verified++
		}
	}

	b.PositiveRatio = float64(b.Positive) / float64(n)
	b.NegativeRatio = float64(b.Negative) / float64(n)
	b.VerifiedRatio = float64(b.Verified) / float64(n)
	b.RawScore = b.PositiveRatio*PositiveWeight - b.NegativeRatio*NegativeWeight
	b.VerifiedBonus = b.VerifiedRatio * VerifiedWeight

	// score*n as an exact integer, clamped to [0, MaxScore*n].
	scaled := b.Positive*PositiveWeight - b.Negative*NegativeWeight + b.Verified*VerifiedWeight
	scaled = max(0, min(scaled, MaxScore*n))

	b.SafetyScore = roundHalfUp(scaled, n)
	b.AverageRating = float64(roundHalfUp(sum*10, n)) / 10
	b.TotalReviews = n
	return b
}

// roundHalfUp returns num/den rounded half-up for num >= 0, den > 0.
func roundHalfUp(num, den int) int {
	return (2*num + den) / (2 * den)
}
