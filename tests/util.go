package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/elimuhq/darasa/core/badge"
	"github.com/elimuhq/darasa/core/course"
	"github.com/elimuhq/darasa/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr, err := repo.CreateUser(context.Background(), user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(t *testing.T, repo course.Repository, title, instructorID string) course.Course {
	t.Helper()

	crs, err := repo.CreateCourse(context.Background(), course.Course{
		Title:      title,
		Instructor: instructorID,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

func CreateEnrollment(t *testing.T, repo course.Repository, studentID, courseID, status string) course.Enrollment {
	t.Helper()

	enr := course.Enrollment{
		Student:   studentID,
		Course:    courseID,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if status == course.StatusCompleted {
		enr.CompletedAt = null.TimeFrom(time.Now().UTC())
	}
	enr, err := repo.CreateEnrollment(context.Background(), enr)
	if err != nil {
		t.Fatalf("CreateEnrollment() failed: %v", err)
	}
	return enr
}

func CreateBadge(t *testing.T, repo badge.Repository, b badge.Badge) badge.Badge {
	t.Helper()

	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b, err := repo.CreateBadge(context.Background(), b)
	if err != nil {
		t.Fatalf("CreateBadge() failed: %v", err)
	}
	return b
}
