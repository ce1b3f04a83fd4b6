package course

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/elimuhq/darasa/core"
)

// Enrollment statuses
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusDropped   = "dropped"
)

type Course struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Instructor  string    `json:"instructor"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// Enrollment is a student's registration in a course. Its status gates
// certificate issuance.
type Enrollment struct {
	ID          string    `json:"id"`
	Student     string    `json:"student"`
	Course      string    `json:"course"`
	Status      string    `json:"status"`
	CompletedAt null.Time `json:"completed_at"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

func (e *Enrollment) IsCompleted() bool {
	return e.Status == StatusCompleted
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Instructor  string `json:"instructor" validate:"required"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}

// NewEnrollment contains information needed to enroll a student in a course.
type NewEnrollment struct {
	Student string `json:"student" validate:"required"`
	Course  string `json:"course" validate:"required"`
}

func (ne *NewEnrollment) Validate(validate *validator.Validate) error {
	return validate.Struct(ne)
}
