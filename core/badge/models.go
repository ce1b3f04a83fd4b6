package badge

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/elimuhq/darasa/core"
)

// Badge criteria: a closed tag set. streak, community and custom are reserved
// extension points; the evaluator skips them without erroring.
const (
	CriteriaCourseCompletion = "course_completion"
	CriteriaStreak           = "streak"
	CriteriaAssessmentScore  = "assessment_score"
	CriteriaCommunity        = "community"
	CriteriaCustom           = "custom"
)

var AllCriteria = []string{
	CriteriaCourseCompletion,
	CriteriaStreak,
	CriteriaAssessmentScore,
	CriteriaCommunity,
	CriteriaCustom,
}

type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`

	Criteria  string       `json:"criteria"`
	Threshold int          `json:"threshold"`
	MinScore  null.Float64 `json:"min_score,omitempty"` // percentage; unset = any passing score
	Course    null.String  `json:"course,omitempty"`    // unset = whole history

	IsSecret  bool      `json:"is_secret"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewBadge contains information needed to create a new Badge.
type NewBadge struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Icon        string  `json:"icon" validate:"required"`
	Criteria    string  `json:"criteria" validate:"required,badgecriteria"`
	Threshold   int     `json:"threshold" validate:"omitempty,min=1"`
	MinScore    float64 `json:"min_score" validate:"omitempty,gt=0,lte=100"`
	Course      string  `json:"course"`
	IsSecret    bool    `json:"is_secret"`
}

func (nb *NewBadge) Validate(validate *validator.Validate, svc Service) error {
	nb.Name = core.CleanString(nb.Name)
	nb.Description = core.CleanString(nb.Description)

	if err := validate.Struct(nb); err != nil {
		return err
	}
	return svc.CheckNameUniqueness(nb.Name)
}

// UpdateBadge defines what an administrator may edit on an existing Badge.
type UpdateBadge struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
	Criteria    string   `json:"criteria" validate:"omitempty,badgecriteria"`
	Threshold   *int     `json:"threshold" validate:"omitempty,min=1"`
	MinScore    *float64 `json:"min_score" validate:"omitempty,gt=0,lte=100"`
	Course      *string  `json:"course"`
	IsSecret    *bool    `json:"is_secret"`
	IsActive    *bool    `json:"is_active"`
}

func (ub *UpdateBadge) Validate(validate *validator.Validate, orig Badge, svc Service) error {
	ub.Name = core.CleanString(ub.Name)

	if err := validate.Struct(ub); err != nil {
		return err
	}
	if ub.Name != "" && ub.Name != orig.Name {
		return svc.CheckNameUniqueness(ub.Name)
	}
	return nil
}
