package badge

import (
	"context"
	"errors"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/elimuhq/darasa/core"
	"github.com/elimuhq/darasa/core/user"
)

var (
	// errors
	ErrNotFound    = errors.New("badge not found")
	ErrBadgeExists = errors.New("a badge with this name already exists")
)

type (
	Repository interface {
		CheckBadgeNameUniqueness(ctx context.Context, name string, excludedBadges ...Badge) error
		CreateBadge(ctx context.Context, b Badge) (Badge, error)
		GetBadgeByID(ctx context.Context, id string) (Badge, error)
		QueryBadges(ctx context.Context, activeOnly bool) ([]Badge, error)
		UpdateBadge(ctx context.Context, b Badge) (Badge, error)
	}

	// Service manages the badge catalog and evaluates qualification.
	// The catalog is read-only to the evaluator; the only write Evaluate
	// performs is the set-union award on the user.
	Service interface {
		CheckNameUniqueness(name string, exclBadges ...Badge) error
		Create(ctx context.Context, nb NewBadge) (Badge, error)
		GetByID(ctx context.Context, id string) (Badge, error)
		Query(ctx context.Context, activeOnly bool) ([]Badge, error)
		Update(ctx context.Context, id string, ub UpdateBadge) (Badge, error)
		// Evaluate computes and awards the badges the user newly qualifies
		// for. It is idempotent and safe to invoke concurrently for the same
		// user: already-awarded badges never re-qualify, and the award write
		// is an atomic set-union.
		Evaluate(ctx context.Context, userID string) ([]Badge, error)
	}

	service struct {
		repo    Repository
		usrRepo user.Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrRepo user.Repository) Service {
	return &service{repo: repo, usrRepo: usrRepo}
}

func (svc *service) CheckNameUniqueness(name string, exclBadges ...Badge) error {
	if err := svc.repo.CheckBadgeNameUniqueness(context.Background(), name, exclBadges...); err != nil {
		if err == ErrBadgeExists {
			return core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nb NewBadge) (Badge, error) {
	b := Badge{
		Name:        nb.Name,
		Description: nb.Description,
		Icon:        nb.Icon,
		Criteria:    nb.Criteria,
		Threshold:   nb.Threshold,
		MinScore:    null.NewFloat64(nb.MinScore, nb.MinScore != 0),
		Course:      null.NewString(nb.Course, nb.Course != ""),
		IsSecret:    nb.IsSecret,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}
	return svc.repo.CreateBadge(ctx, b)
}

func (svc *service) GetByID(ctx context.Context, id string) (Badge, error) {
	return svc.repo.GetBadgeByID(ctx, id)
}

func (svc *service) Query(ctx context.Context, activeOnly bool) ([]Badge, error) {
	return svc.repo.QueryBadges(ctx, activeOnly)
}

func (svc *service) Update(ctx context.Context, id string, ub UpdateBadge) (Badge, error) {
	b, err := svc.repo.GetBadgeByID(ctx, id)
	if err != nil {
		return Badge{}, err
	}

	if ub.Name != "" {
		b.Name = ub.Name
	}
	if ub.Description != "" {
		b.Description = ub.Description
	}
	if ub.Icon != "" {
		b.Icon = ub.Icon
	}
	if ub.Criteria != "" {
		b.Criteria = ub.Criteria
	}
	if ub.Threshold != nil {
		b.Threshold = *ub.Threshold
	}
	if ub.MinScore != nil {
		b.MinScore = null.NewFloat64(*ub.MinScore, *ub.MinScore != 0)
	}
	if ub.Course != nil {
		b.Course = null.NewString(*ub.Course, *ub.Course != "")
	}
	if ub.IsSecret != nil {
		b.IsSecret = *ub.IsSecret
	}
	if ub.IsActive != nil {
		b.IsActive = *ub.IsActive
	}
	return svc.repo.UpdateBadge(ctx, b)
}

func (svc *service) Evaluate(ctx context.Context, userID string) ([]Badge, error) {
	usr, err := svc.usrRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	catalog, err := svc.repo.QueryBadges(ctx, true /* activeOnly */)
	if err != nil {
		return nil, err
	}

	newlyEarned := make([]Badge, 0)
	for _, b := range catalog {
		if usr.HasBadge(b.ID) {
			continue
		}
		if qualifies(b, usr) {
			newlyEarned = append(newlyEarned, b)
		}
	}

	// single batched set-union write; nothing to do when no badge qualifies
	if len(newlyEarned) > 0 {
		ids := make([]string, 0, len(newlyEarned))
		for _, b := range newlyEarned {
			ids = append(ids, b.ID)
		}
		if err = svc.usrRepo.AddUserBadges(ctx, usr.ID, ids); err != nil {
			return nil, err
		}
	}
	return newlyEarned, nil
}

// qualifies applies a single badge rule to the user's achievement history.
// Malformed rules (missing threshold, reserved criteria) never qualify and
// never error, so one bad catalog entry cannot abort a whole evaluation.
func qualifies(b Badge, usr user.User) bool {
	switch b.Criteria {
	case CriteriaCourseCompletion:
		if b.Course.Valid {
			return usr.HasCompleted(b.Course.String)
		}
		return b.Threshold >= 1 && len(usr.CompletedCourses) >= b.Threshold

	case CriteriaAssessmentScore:
		if b.Threshold < 1 {
			return false
		}
		var count int
		for _, res := range usr.AssessmentResults {
			if !res.Passed {
				continue
			}
			pct, ok := res.Percentage()
			if !ok { // totalPoints == 0 never counts
				continue
			}
			if b.MinScore.Valid && pct < b.MinScore.Float64 {
				continue
			}
			if b.Course.Valid && res.Course != b.Course.String {
				continue
			}
			count++
		}
		return count >= b.Threshold

	default:
		// streak, community, custom: reserved
		return false
	}
}
