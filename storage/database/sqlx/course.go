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

	"github.com/elimuhq/darasa/core/course"
)

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sql.DB) course.Repository {
	return &courseRepository{db: sqlx.NewDb(db, "postgres")}
}

type courseRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	Instructor  sql.NullString `db:"instructor_id"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r courseRow) toCourse() course.Course {
	return course.Course{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description.String,
		Instructor:  r.Instructor.String,
		CreatedAt:   r.CreatedAt,
	}
}

type enrollmentRow struct {
	ID          string    `db:"id"`
	Student     string    `db:"student_id"`
	Course      string    `db:"course_id"`
	Status      string    `db:"status"`
	CompletedAt null.Time `db:"completed_at"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r enrollmentRow) toEnrollment() course.Enrollment {
	return course.Enrollment{
		ID:          r.ID,
		Student:     r.Student,
		Course:      r.Course,
		Status:      r.Status,
		CompletedAt: r.CompletedAt,
		CreatedAt:   r.CreatedAt,
	}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	crs.ID = uuid.NewString()
	q := `INSERT INTO course (id, title, description, instructor_id, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := repo.db.ExecContext(ctx, q, crs.ID, crs.Title, crs.Description, crs.Instructor, crs.CreatedAt); err != nil {
		return course.Course{}, errors.Wrap(err, "creating course")
	}
	return crs, nil
}

func (repo *courseRepository) GetCourseByID(ctx context.Context, id string) (course.Course, error) {
	var row courseRow
	q := `SELECT id, title, description, instructor_id, created_at FROM course WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "getting course")
	}
	return row.toCourse(), nil
}

func (repo *courseRepository) QueryAllCourses(ctx context.Context) ([]course.Course, error) {
	var rows []courseRow
	q := `SELECT id, title, description, instructor_id, created_at FROM course ORDER BY created_at`
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.toCourse())
	}
	return courses, nil
}

func (repo *courseRepository) CreateEnrollment(ctx context.Context, enr course.Enrollment) (course.Enrollment, error) {
	enr.ID = uuid.NewString()
	q := `INSERT INTO enrollment (id, student_id, course_id, status, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := repo.db.ExecContext(ctx, q, enr.ID, enr.Student, enr.Course, enr.Status, enr.CreatedAt); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return course.Enrollment{}, course.ErrAlreadyEnrolled
		}
		return course.Enrollment{}, errors.Wrap(err, "creating enrollment")
	}
	return enr, nil
}

func (repo *courseRepository) GetEnrollmentByID(ctx context.Context, id string) (course.Enrollment, error) {
	var row enrollmentRow
	q := `SELECT id, student_id, course_id, status, completed_at, created_at FROM enrollment WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return course.Enrollment{}, course.ErrEnrollmentNotFound
		}
		return course.Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	return row.toEnrollment(), nil
}

func (repo *courseRepository) UpdateEnrollment(ctx context.Context, enr course.Enrollment) (course.Enrollment, error) {
	q := `UPDATE enrollment SET status = $2, completed_at = $3 WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, q, enr.ID, enr.Status, enr.CompletedAt)
	if err != nil {
		return course.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.Enrollment{}, course.ErrEnrollmentNotFound
	}
	return enr, nil
}
