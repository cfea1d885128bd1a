package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/safespacefinder/safespace/internal/domain"
	"github.com/safespacefinder/safespace/internal/repository"
	"github.com/safespacefinder/safespace/pkg/database"
	apperrors "github.com/safespacefinder/safespace/pkg/errors"
)

const businessColumns = `id, name, slug, description, category, address, city, latitude, longitude,
		website, phone, accessibility_features, inclusivity_tags, owner_id,
		safety_score, average_rating, total_reviews, created_at, updated_at`

// BusinessRepository implements repository.BusinessRepository on PostgreSQL.
type BusinessRepository struct {
	db database.DBTX
}

// NewBusinessRepository creates a PostgreSQL-backed business repository.
func NewBusinessRepository(db database.DBTX) *BusinessRepository {
	return &BusinessRepository{db: db}
}

// Create inserts a new business.
func (r *BusinessRepository) Create(ctx context.Context, b *domain.Business) (err error) {
	query := `
		INSERT INTO businesses (id, name, slug, description, category, address, city, latitude, longitude,
			website, phone, accessibility_features, inclusivity_tags, owner_id,
			safety_score, average_rating, total_reviews, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	ctx, end := database.TraceQuery(ctx, "CreateBusiness", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		b.ID,
		b.Name,
		b.Slug,
		b.Description,
		b.Category,
		b.Address,
		b.City,
		b.Latitude,
		b.Longitude,
		b.Website,
		b.Phone,
		nonNil(b.AccessibilityFeatures),
		nonNil(b.InclusivityTags),
		b.OwnerID,
		b.SafetyScore,
		b.AverageRating,
		b.TotalReviews,
		b.CreatedAt,
		b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("business", "slug", b.Slug)
		}
		return fmt.Errorf("insert business: %w", err)
	}
	return nil
}

// GetByID retrieves a business by ID.
func (r *BusinessRepository) GetByID(ctx context.Context, id string) (*domain.Business, error) {
	return r.getOne(ctx, "GetBusinessByID", `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id)
}

// GetBySlug retrieves a business by slug.
func (r *BusinessRepository) GetBySlug(ctx context.Context, slug string) (*domain.Business, error) {
	return r.getOne(ctx, "GetBusinessBySlug", `SELECT `+businessColumns+` FROM businesses WHERE slug = $1`, slug)
}

func (r *BusinessRepository) getOne(ctx context.Context, op, query string, arg any) (_ *domain.Business, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	b, err := scanBusiness(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get business: %w", err)
	}
	return b, nil
}

var businessOrder = map[string]string{
	"":                       "created_at DESC",
	domain.SortByNewest:      "created_at DESC",
	domain.SortBySafetyScore: "safety_score DESC, total_reviews DESC",
	domain.SortByRating:      "average_rating DESC, total_reviews DESC",
	domain.SortByName:        "name ASC",
}

// List returns businesses matching filter with the total count.
func (r *BusinessRepository) List(ctx context.Context, filter repository.BusinessFilter) (_ []domain.Business, _ int, err error) {
	var (
		conditions []string
		args       []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.City != nil {
		conditions = append(conditions, "lower(city) = lower("+arg(*filter.City)+")")
	}
	if filter.Category != nil {
		conditions = append(conditions, "category = "+arg(*filter.Category))
	}
	if filter.Tag != nil {
		p := arg(*filter.Tag)
		conditions = append(conditions, fmt.Sprintf("(%s = ANY(inclusivity_tags) OR %s = ANY(accessibility_features))", p, p))
	}
	if filter.Search != nil {
		p := arg("%" + *filter.Search + "%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE %s OR description ILIKE %s)", p, p))
	}
	if filter.MinSafetyScore != nil {
		conditions = append(conditions, "safety_score >= "+arg(*filter.MinSafetyScore))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	order, ok := businessOrder[filter.SortBy]
	if !ok {
		return nil, 0, apperrors.InvalidInput("unknown sort order: " + filter.SortBy)
	}

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM businesses
		%s
		ORDER BY %s, id
		LIMIT %s OFFSET %s`,
		businessColumns, where, order, arg(limit), arg(offset),
	)

	ctx, end := database.TraceQuery(ctx, "ListBusinesses", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list businesses: %w", err)
	}
	defer rows.Close()

	businesses := []domain.Business{}
	total := 0
	for rows.Next() {
		b, err := scanBusiness(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan business row: %w", err)
		}
		businesses = append(businesses, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate business rows: %w", err)
	}
	return businesses, total, nil
}

// Update writes the descriptive fields of b and refreshes UpdatedAt.
func (r *BusinessRepository) Update(ctx context.Context, b *domain.Business) (err error) {
	b.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE businesses
		SET name = $1, slug = $2, description = $3, category = $4, address = $5, city = $6,
		    latitude = $7, longitude = $8, website = $9, phone = $10,
		    accessibility_features = $11, inclusivity_tags = $12, updated_at = $13
		WHERE id = $14`

	ctx, end := database.TraceQuery(ctx, "UpdateBusiness", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query,
		b.Name,
		b.Slug,
		b.Description,
		b.Category,
		b.Address,
		b.City,
		b.Latitude,
		b.Longitude,
		b.Website,
		b.Phone,
		nonNil(b.AccessibilityFeatures),
		nonNil(b.InclusivityTags),
		b.UpdatedAt,
		b.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("business", "slug", b.Slug)
		}
		return fmt.Errorf("update business: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("business", b.ID)
	}
	return nil
}

// Delete removes a business by ID.
func (r *BusinessRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM businesses WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteBusiness", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete business: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("business", id)
	}
	return nil
}

// UpdateAggregate writes the derived fields. It returns a NotFound error
// when the business does not exist.
func (r *BusinessRepository) UpdateAggregate(ctx context.Context, id string, agg domain.Aggregate) (err error) {
	query := `
		UPDATE businesses
		SET safety_score = $1, average_rating = $2, total_reviews = $3, updated_at = $4
		WHERE id = $5`

	ctx, end := database.TraceQuery(ctx, "UpdateBusinessAggregate", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, agg.SafetyScore, agg.AverageRating, agg.TotalReviews, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update business aggregate: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("business", id)
	}
	return nil
}

// scanBusiness scans one business row. extra receives trailing columns such
// as a window count.
func scanBusiness(row pgx.Row, extra ...any) (*domain.Business, error) {
	var b domain.Business
	dest := []any{
		&b.ID,
		&b.Name,
		&b.Slug,
		&b.Description,
		&b.Category,
		&b.Address,
		&b.City,
		&b.Latitude,
		&b.Longitude,
		&b.Website,
		&b.Phone,
		&b.AccessibilityFeatures,
		&b.InclusivityTags,
		&b.OwnerID,
		&b.SafetyScore,
		&b.AverageRating,
		&b.TotalReviews,
		&b.CreatedAt,
		&b.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	b.AccessibilityFeatures = nonNil(b.AccessibilityFeatures)
	b.InclusivityTags = nonNil(b.InclusivityTags)
	return &b, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
