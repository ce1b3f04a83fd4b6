package sqlxdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/elimuhq/darasa/core/badge"
)

type badgeRepository struct {
	db *sqlx.DB
}

var _ badge.Repository = (*badgeRepository)(nil) // interface compliance check

func NewBadgeRepository(db *sql.DB) badge.Repository {
	return &badgeRepository{db: sqlx.NewDb(db, "postgres")}
}

type badgeRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	Icon        string         `db:"icon"`
	Criteria    string         `db:"criteria"`
	Threshold   sql.NullInt64  `db:"threshold"`
	MinScore    null.Float64   `db:"min_score"`
	Course      null.String    `db:"course_id"`
	IsSecret    bool           `db:"is_secret"`
	IsActive    bool           `db:"is_active"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r badgeRow) toBadge() badge.Badge {
	return badge.Badge{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description.String,
		Icon:        r.Icon,
		Criteria:    r.Criteria,
		Threshold:   int(r.Threshold.Int64),
		MinScore:    r.MinScore,
		Course:      r.Course,
		IsSecret:    r.IsSecret,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
	}
}

const selectBadge = `SELECT id, name, description, icon, criteria, threshold, min_score, course_id, is_secret, is_active, created_at FROM badge`

func (repo *badgeRepository) CheckBadgeNameUniqueness(ctx context.Context, name string, excludedBadges ...badge.Badge) error {
	exclIDs := make([]string, 0, len(excludedBadges))
	for _, b := range excludedBadges {
		exclIDs = append(exclIDs, b.ID)
	}

	var exists bool
	q := `SELECT TRUE FROM badge WHERE name = $1 AND id != ALL($2) LIMIT 1`
	err := repo.db.GetContext(ctx, &exists, q, name, pq.Array(exclIDs))
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "checking badge name uniqueness")
	}
	return badge.ErrBadgeExists
}

func (repo *badgeRepository) CreateBadge(ctx context.Context, b badge.Badge) (badge.Badge, error) {
	b.ID = uuid.NewString()
	q := `INSERT INTO badge (id, name, description, icon, criteria, threshold, min_score, course_id, is_secret, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := repo.db.ExecContext(ctx, q,
		b.ID, b.Name, b.Description, b.Icon, b.Criteria, b.Threshold, b.MinScore, b.Course, b.IsSecret, b.IsActive, b.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return badge.Badge{}, badge.ErrBadgeExists
		}
		return badge.Badge{}, errors.Wrap(err, "creating badge")
	}
	return b, nil
}

func (repo *badgeRepository) GetBadgeByID(ctx context.Context, id string) (badge.Badge, error) {
	var row badgeRow
	if err := repo.db.GetContext(ctx, &row, selectBadge+` WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return badge.Badge{}, badge.ErrNotFound
		}
		return badge.Badge{}, errors.Wrap(err, "getting badge")
	}
	return row.toBadge(), nil
}

func (repo *badgeRepository) QueryBadges(ctx context.Context, activeOnly bool) ([]badge.Badge, error) {
	q := selectBadge
	if activeOnly {
		q += ` WHERE is_active = TRUE`
	}
	q += ` ORDER BY created_at`

	var rows []badgeRow
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying badges")
	}
	badges := make([]badge.Badge, 0, len(rows))
	for _, row := range rows {
		badges = append(badges, row.toBadge())
	}
	return badges, nil
}

func (repo *badgeRepository) UpdateBadge(ctx context.Context, b badge.Badge) (badge.Badge, error) {
	q := `UPDATE badge SET name = $2, description = $3, icon = $4, criteria = $5,
threshold = $6, min_score = $7, course_id = $8, is_secret = $9, is_active = $10
WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, q,
		b.ID, b.Name, b.Description, b.Icon, b.Criteria, b.Threshold, b.MinScore, b.Course, b.IsSecret, b.IsActive,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return badge.Badge{}, badge.ErrBadgeExists
		}
		return badge.Badge{}, errors.Wrap(err, "updating badge")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return badge.Badge{}, badge.ErrNotFound
	}
	return b, nil
}
