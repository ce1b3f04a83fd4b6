package user

import (
	"context"
	"errors"
	"time"

	"github.com/elimuhq/darasa/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		QueryAllUsers(ctx context.Context) ([]User, error)
		UpdateUser(ctx context.Context, usr User, isActive *bool) (User, error)

		// achievement history
		AddCompletedCourse(ctx context.Context, userID, courseID string) error
		AddAssessmentResult(ctx context.Context, userID string, res AssessmentResult) error
		// AddUserBadges applies an atomic set-union of badgeIDs into the user's
		// awarded set; concurrent calls must not lose awards.
		AddUserBadges(ctx context.Context, userID string, badgeIDs []string) error
	}

	// Service resolves identity references and owns the user's achievement
	// history. It doubles as the role resolver for the credential engine.
	Service interface {
		CheckUniqueness(uname, email string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		// GetStudent returns the user iff it currently holds the student role.
		GetStudent(ctx context.Context, id string) (User, error)
		// GetInstructor returns the user iff it currently holds the instructor role.
		GetInstructor(ctx context.Context, id string) (User, error)
		QueryAll(ctx context.Context) ([]User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		AddCompletedCourse(ctx context.Context, userID, courseID string) error
		AddAssessmentResult(ctx context.Context, userID string, res AssessmentResult) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) CheckUniqueness(uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(context.Background(), uname, email, exclUsers...); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *service) GetStudent(ctx context.Context, id string) (User, error) {
	return svc.getWithRole(ctx, id, RoleStudent)
}

func (svc *service) GetInstructor(ctx context.Context, id string) (User, error) {
	return svc.getWithRole(ctx, id, RoleInstructor)
}

// getWithRole treats a role mismatch as a stale reference: the user record may
// exist but no longer backs the credential that points to it.
func (svc *service) getWithRole(ctx context.Context, id, role string) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !usr.RoleStartsWith(role) {
		return User{}, ErrNotFound
	}
	return usr, nil
}

func (svc *service) QueryAll(ctx context.Context) ([]User, error) {
	return svc.repo.QueryAllUsers(ctx)
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr := User{
		ID:        id,
		Name:      uu.Name,
		Username:  uu.Username,
		Email:     uu.Email,
		Roles:     uu.Roles,
		UpdatedAt: time.Now().UTC(),
	}
	return svc.repo.UpdateUser(ctx, usr, uu.IsActive)
}

func (svc *service) AddCompletedCourse(ctx context.Context, userID, courseID string) error {
	if _, err := svc.repo.GetUserByID(ctx, userID); err != nil {
		return err
	}
	return svc.repo.AddCompletedCourse(ctx, userID, courseID)
}

func (svc *service) AddAssessmentResult(ctx context.Context, userID string, res AssessmentResult) error {
	if _, err := svc.repo.GetUserByID(ctx, userID); err != nil {
		return err
	}
	return svc.repo.AddAssessmentResult(ctx, userID, res)
}
