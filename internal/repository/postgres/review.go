package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/safespacefinder/safespace/internal/domain"
	"github.com/safespacefinder/safespace/internal/repository"
	"github.com/safespacefinder/safespace/pkg/database"
	apperrors "github.com/safespacefinder/safespace/pkg/errors"
)

const reviewColumns = `id, business_id, user_id, rating, title, body, verified, verification_method,
		status, owner_response, responded_at, created_at, updated_at`

// ReviewRepository implements repository.ReviewRepository on PostgreSQL.
type ReviewRepository struct {
	db database.DBTX
}

// NewReviewRepository creates a PostgreSQL-backed review repository.
func NewReviewRepository(db database.DBTX) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create inserts a review. The (business_id, user_id) unique index enforces
// one review per user and business.
func (r *ReviewRepository) Create(ctx context.Context, rv *domain.Review) (err error) {
	query := `
		INSERT INTO reviews (id, business_id, user_id, rating, title, body, verified, verification_method,
			status, owner_response, responded_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	ctx, end := database.TraceQuery(ctx, "CreateReview", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		rv.ID,
		rv.BusinessID,
		rv.UserID,
		rv.Rating,
		rv.Title,
		rv.Body,
		rv.Verified,
		string(rv.VerificationMethod),
		string(rv.Status),
		rv.OwnerResponse,
		rv.RespondedAt,
		rv.CreatedAt,
		rv.UpdatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return apperrors.AlreadyExists("review", "business_id", rv.BusinessID)
		case isForeignKeyViolation(err):
			return apperrors.NotFound("business", rv.BusinessID)
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// GetByID retrieves a review by ID.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (_ *domain.Review, err error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetReviewByID", query)
	defer func() { end(err) }()

	rv, err := scanReview(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get review: %w", err)
	}
	return rv, nil
}

// ListByBusinessID returns a page of reviews for a business, newest first.
func (r *ReviewRepository) ListByBusinessID(ctx context.Context, businessID string, filter repository.ReviewFilter) (_ []domain.Review, _ int, err error) {
	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args := []any{businessID}
	where := "business_id = $1"
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		where += " AND status = ANY($2)"
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM reviews
		WHERE %s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`,
		reviewColumns, where, len(args)-1, len(args),
	)

	ctx, end := database.TraceQuery(ctx, "ListReviews", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []domain.Review{}
	total := 0
	for rows.Next() {
		rv, err := scanReview(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate review rows: %w", err)
	}
	return reviews, total, nil
}

// FindAllByBusinessID returns every review of a business in one read.
func (r *ReviewRepository) FindAllByBusinessID(ctx context.Context, businessID string) (_ []domain.Review, err error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE business_id = $1`

	ctx, end := database.TraceQuery(ctx, "FindAllReviewsByBusiness", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("find reviews: %w", err)
	}
	defer rows.Close()

	reviews := []domain.Review{}
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}
	return reviews, nil
}

// Update writes the author-editable fields and the owner response.
func (r *ReviewRepository) Update(ctx context.Context, rv *domain.Review) (err error) {
	rv.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE reviews
		SET rating = $1, title = $2, body = $3, owner_response = $4, responded_at = $5, updated_at = $6
		WHERE id = $7`

	ctx, end := database.TraceQuery(ctx, "UpdateReview", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, rv.Rating, rv.Title, rv.Body, rv.OwnerResponse, rv.RespondedAt, rv.UpdatedAt, rv.ID)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("review", rv.ID)
	}
	return nil
}

// Delete removes a review by ID.
func (r *ReviewRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM reviews WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteReview", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("review", id)
	}
	return nil
}

// UpdateStatus sets the moderation status of a review.
func (r *ReviewRepository) UpdateStatus(ctx context.Context, id string, status domain.ReviewStatus) (err error) {
	query := `UPDATE reviews SET status = $1, updated_at = $2 WHERE id = $3`

	ctx, end := database.TraceQuery(ctx, "UpdateReviewStatus", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update review status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("review", id)
	}
	return nil
}

// SetVerified marks a review as verified by method.
func (r *ReviewRepository) SetVerified(ctx context.Context, id string, method domain.VerificationMethod) (err error) {
	query := `UPDATE reviews SET verified = TRUE, verification_method = $1, updated_at = $2 WHERE id = $3`

	ctx, end := database.TraceQuery(ctx, "VerifyReview", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, string(method), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("verify review: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("review", id)
	}
	return nil
}

func scanReview(row pgx.Row, extra ...any) (*domain.Review, error) {
	var (
		rv             domain.Review
		method, status string
	)
	dest := []any{
		&rv.ID,
		&rv.BusinessID,
		&rv.UserID,
		&rv.Rating,
		&rv.Title,
		&rv.Body,
		&rv.Verified,
		&method,
		&status,
		&rv.OwnerResponse,
		&rv.RespondedAt,
		&rv.CreatedAt,
		&rv.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	rv.VerificationMethod = domain.VerificationMethod(method)
	rv.Status = domain.ReviewStatus(status)
	return &rv, nil
}
