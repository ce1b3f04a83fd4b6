package course

import (
	"context"
	"errors"
	"time"

	"github.com/volatiletech/null/v8"
)

var (
	// errors
	ErrNotFound           = errors.New("course not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrAlreadyEnrolled    = errors.New("student is already enrolled in this course")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		GetCourseByID(ctx context.Context, id string) (Course, error)
		QueryAllCourses(ctx context.Context) ([]Course, error)
		CreateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
		GetEnrollmentByID(ctx context.Context, id string) (Enrollment, error)
		UpdateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
	}

	// Service exposes the course/enrollment read models the credential engine
	// depends on. Course content management itself lives elsewhere.
	Service interface {
		CreateCourse(ctx context.Context, nc NewCourse) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		QueryAll(ctx context.Context) ([]Course, error)
		Enroll(ctx context.Context, ne NewEnrollment) (Enrollment, error)
		GetEnrollment(ctx context.Context, id string) (Enrollment, error)
		// CompleteEnrollment marks the enrollment completed; the caller is
		// expected to follow with certificate issuance and badge evaluation.
		CompleteEnrollment(ctx context.Context, id string) (Enrollment, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) CreateCourse(ctx context.Context, nc NewCourse) (Course, error) {
	crs := Course{
		Title:       nc.Title,
		Description: nc.Description,
		Instructor:  nc.Instructor,
		CreatedAt:   time.Now().UTC(),
	}
	return svc.repo.CreateCourse(ctx, crs)
}

func (svc *service) GetCourse(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourseByID(ctx, id)
}

func (svc *service) QueryAll(ctx context.Context) ([]Course, error) {
	return svc.repo.QueryAllCourses(ctx)
}

func (svc *service) Enroll(ctx context.Context, ne NewEnrollment) (Enrollment, error) {
	enr := Enrollment{
		Student:   ne.Student,
		Course:    ne.Course,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	return svc.repo.CreateEnrollment(ctx, enr)
}

func (svc *service) GetEnrollment(ctx context.Context, id string) (Enrollment, error) {
	return svc.repo.GetEnrollmentByID(ctx, id)
}

func (svc *service) CompleteEnrollment(ctx context.Context, id string) (Enrollment, error) {
	enr, err := svc.repo.GetEnrollmentByID(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	if enr.IsCompleted() {
		return enr, nil
	}
	enr.Status = StatusCompleted
	enr.CompletedAt = null.TimeFrom(time.Now().UTC())
	return svc.repo.UpdateEnrollment(ctx, enr)
}
