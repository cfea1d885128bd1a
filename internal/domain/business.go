package domain

import (
	"time"
)

// Business sort orders accepted by List.
const (
	SortByNewest      = "newest"
	SortBySafetyScore = "safety_score"
	SortByRating      = "rating"
	SortByName        = "name"
)

// Business is a listed venue. SafetyScore, AverageRating and TotalReviews are
// derived from its reviews and written only by the safety aggregator.
type Business struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	Slug                  string    `json:"slug"`
	Description           string    `json:"description"`
	Category              string    `json:"category"`
	Address               string    `json:"address"`
	City                  string    `json:"city"`
	Latitude              *float64  `json:"latitude,omitempty"`
	Longitude             *float64  `json:"longitude,omitempty"`
	Website               string    `json:"website,omitempty"`
	Phone                 string    `json:"phone,omitempty"`
	AccessibilityFeatures []string  `json:"accessibility_features"`
	InclusivityTags       []string  `json:"inclusivity_tags"`
	OwnerID               string    `json:"owner_id"`
	SafetyScore           int       `json:"safety_score"`
	AverageRating         float64   `json:"average_rating"`
	TotalReviews          int       `json:"total_reviews"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Aggregate holds the derived fields of a business.
type Aggregate struct {
	SafetyScore   int     `json:"safety_score"`
	AverageRating float64 `json:"average_rating"`
	TotalReviews  int     `json:"total_reviews"`
}

// Aggregate returns the derived fields currently stored on b.
func (b *Business) Aggregate() Aggregate {
	return Aggregate{
		SafetyScore:   b.SafetyScore,
		AverageRating: b.AverageRating,
		TotalReviews:  b.TotalReviews,
	}
}

// ApplyAggregate overwrites the derived fields of b.
func (b *Business) ApplyAggregate(a Aggregate) {
	b.SafetyScore = a.SafetyScore
	b.AverageRating = a.AverageRating
	b.TotalReviews = a.TotalReviews
}

// IsOwnedBy reports whether userID owns b.
func (b *Business) IsOwnedBy(userID string) bool {
	return userID != "" && b.OwnerID == userID
}

// ValidSortByValues returns the accepted business sort orders.
func ValidSortByValues() []string {
	return []string{SortByNewest, SortBySafetyScore, SortByRating, SortByName}
}

// IsValidSortBy reports whether s is a known sort order. Empty means default.
func IsValidSortBy(s string) bool {
	if s == "" {
		return true
	}
	for _, v := range ValidSortByValues() {
		if v == s {
			return true
		}
	}
	return false
}
