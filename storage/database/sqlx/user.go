package sqlxdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/elimuhq/darasa/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sql.DB) user.Repository {
	return &userRepository{db: sqlx.NewDb(db, "postgres")}
}

type userRow struct {
	ID               string         `db:"id"`
	Name             sql.NullString `db:"name"`
	Username         sql.NullString `db:"username"`
	Email            sql.NullString `db:"email"`
	IsActive         bool           `db:"is_active"`
	Roles            pq.StringArray `db:"roles"`
	CompletedCourses pq.StringArray `db:"completed_courses"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r userRow) toUser() user.User {
	return user.User{
		ID:               r.ID,
		Name:             r.Name.String,
		Username:         r.Username.String,
		Email:            r.Email.String,
		IsActive:         r.IsActive,
		Roles:            r.Roles,
		CompletedCourses: r.CompletedCourses,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

const selectUser = `SELECT id, name, username, email, is_active, roles, completed_courses, created_at, updated_at FROM "user"`

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	exclIDs := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		exclIDs = append(exclIDs, usr.ID)
	}

	var field string
	q := `SELECT CASE WHEN username = $1 THEN 'username' ELSE 'email' END FROM "user"
WHERE (username = $1 OR email = $2) AND id != ALL($3) LIMIT 1`
	err := repo.db.GetContext(ctx, &field, q, newNullString(username), newNullString(email), pq.Array(exclIDs))
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	if field == "username" {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.NewString()
	q := `INSERT INTO "user" (id, name, username, email, is_active, roles, completed_courses, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := repo.db.ExecContext(ctx, q,
		usr.ID, usr.Name, usr.Username, usr.Email, usr.IsActive,
		pq.Array(usr.Roles), pq.Array(usr.CompletedCourses), usr.CreatedAt, usr.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			switch pqErr.Constraint {
			case "user_username_key":
				return user.User{}, user.ErrUsernameExists
			case "user_email_key":
				return user.User{}, user.ErrEmailExists
			}
		}
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	var row userRow
	if err := repo.db.GetContext(ctx, &row, selectUser+` WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	usr := row.toUser()
	if err := repo.loadAchievements(ctx, &usr); err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, selectUser+` ORDER BY created_at`); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	q := `UPDATE "user" SET
name = $2, username = $3, email = $4, updated_at = $5,
roles = COALESCE($6, roles),
is_active = COALESCE($7, is_active)
WHERE id = $1`
	var roles interface{}
	if usr.Roles != nil {
		roles = pq.Array(usr.Roles)
	}
	res, err := repo.db.ExecContext(ctx, q, usr.ID, usr.Name, usr.Username, usr.Email, usr.UpdatedAt, roles, isActive)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			switch pqErr.Constraint {
			case "user_username_key":
				return user.User{}, user.ErrUsernameExists
			case "user_email_key":
				return user.User{}, user.ErrEmailExists
			}
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(ctx, usr.ID)
}

func (repo *userRepository) AddCompletedCourse(ctx context.Context, userID, courseID string) error {
	// array set-union; re-completing a course is a no-op
	q := `UPDATE "user" SET completed_courses = ARRAY(SELECT DISTINCT UNNEST(completed_courses || $2::text)) WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, q, userID, courseID)
	if err != nil {
		return errors.Wrap(err, "adding completed course")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) AddAssessmentResult(ctx context.Context, userID string, res user.AssessmentResult) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO assessment_result (id, user_id, course_id, score, total_points, passed, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := repo.db.ExecContext(ctx, q, res.ID, userID, res.Course, res.Score, res.TotalPoints, res.Passed, res.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == foreignKeyViolation {
			return user.ErrNotFound
		}
		return errors.Wrap(err, "adding assessment result")
	}
	return nil
}

func (repo *userRepository) AddUserBadges(ctx context.Context, userID string, badgeIDs []string) error {
	// ON CONFLICT DO NOTHING makes the award an atomic set-union; concurrent
	// evaluations for the same user cannot lose or duplicate awards
	q := `INSERT INTO user_badge (user_id, badge_id) SELECT $1, UNNEST($2::uuid[]) ON CONFLICT DO NOTHING`
	_, err := repo.db.ExecContext(ctx, q, userID, pq.Array(badgeIDs))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == foreignKeyViolation {
			return user.ErrNotFound
		}
		return errors.Wrap(err, "adding user badges")
	}
	return nil
}

func (repo *userRepository) loadAchievements(ctx context.Context, usr *user.User) error {
	var results []user.AssessmentResult
	q := `SELECT id, course_id, score, total_points, passed, created_at FROM assessment_result WHERE user_id = $1 ORDER BY created_at`
	if err := repo.db.SelectContext(ctx, &results, q, usr.ID); err != nil {
		return errors.Wrap(err, "loading assessment results")
	}
	usr.AssessmentResults = results

	var badges []string
	q = `SELECT badge_id FROM user_badge WHERE user_id = $1 ORDER BY awarded_at`
	if err := repo.db.SelectContext(ctx, &badges, q, usr.ID); err != nil {
		return errors.Wrap(err, "loading badges")
	}
	usr.Badges = badges
	return nil
}

func newNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
