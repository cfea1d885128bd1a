package domain

import (
	"strings"
	"time"
)

// ReviewStatus is the moderation state of a review.
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
	ReviewStatusFlagged  ReviewStatus = "flagged"
)

// IsValid reports whether s is a known status.
func (s ReviewStatus) IsValid() bool {
	switch s {
	case ReviewStatusPending, ReviewStatusApproved, ReviewStatusRejected, ReviewStatusFlagged:
		return true
	}
	return false
}

// ParseReviewStatuses parses a comma separated status list, ignoring blanks.
// It returns false if any entry is unknown.
func ParseReviewStatuses(s string) ([]ReviewStatus, bool) {
	var out []ReviewStatus
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		st := ReviewStatus(part)
		if !st.IsValid() {
			return nil, false
		}
		out = append(out, st)
	}
	return out, true
}

// VerificationMethod records how a review's authenticity was corroborated.
type VerificationMethod string

const (
	VerificationPhoto   VerificationMethod = "photo"
	VerificationReceipt VerificationMethod = "receipt"
	VerificationCheckIn VerificationMethod = "check_in"
)

// IsValid reports whether m is a known method.
func (m VerificationMethod) IsValid() bool {
	switch m {
	case VerificationPhoto, VerificationReceipt, VerificationCheckIn:
		return true
	}
	return false
}

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)

// Review is one user's rating of a business. A user reviews a business at
// most once.
type Review struct {
	ID                 string             `json:"id"`
	BusinessID         string             `json:"business_id"`
	UserID             string             `json:"user_id"`
	Rating             int                `json:"rating"`
	Title              string             `json:"title"`
	Body               string             `json:"body"`
	Verified           bool               `json:"verified"`
	VerificationMethod VerificationMethod `json:"verification_method,omitempty"`
	Status             ReviewStatus       `json:"status"`
	OwnerResponse      string             `json:"owner_response,omitempty"`
	RespondedAt        *time.Time         `json:"responded_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// ValidRating reports whether r is within MinRating..MaxRating.
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}
