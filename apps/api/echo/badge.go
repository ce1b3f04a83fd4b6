package echoapi

import (
	"net/http"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimuhq/darasa/core/badge"
	"github.com/elimuhq/darasa/core/user"
)

type badgeApi struct {
	svc      badge.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerBadgeAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := badgeApi{
		svc:      deps.BdgSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}

	bg := g.Group("/badges", jwt)
	bg.POST("", api.create, adminMiddleware())
	bg.GET("", api.query)
	bg.GET("/:id", api.retrieve)
	bg.PUT("/:id", api.update, adminMiddleware())

	g.POST("/users/:id/badges/evaluate", api.evaluate, jwt, adminMiddleware())
}

// Handlers

func (api *badgeApi) create(ctx echo.Context) error {
	var data badge.NewBadge
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBadge")
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	b, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (api *badgeApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	// the full catalog (inactive and secret included) is admin-only
	badges, err := api.svc.Query(ctx.Request().Context(), !claims.IsAdmin)
	if err != nil {
		return err
	}
	if !claims.IsAdmin {
		visible := make([]badge.Badge, 0, len(badges))
		for _, b := range badges {
			if !b.IsSecret {
				visible = append(visible, b)
			}
		}
		badges = visible
	}

	var ord Ordering
	ord.Bind(ctx)
	sortBadges(badges, ord)

	return ctx.JSON(http.StatusOK, badges)
}

func (api *badgeApi) retrieve(ctx echo.Context) error {
	b, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if b.IsSecret && !claims.IsAdmin {
		return badge.ErrNotFound
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *badgeApi) update(ctx echo.Context) error {
	var data badge.UpdateBadge
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateBadge")
	}

	orig, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if err = data.Validate(api.validate, orig, api.svc); err != nil {
		return err
	}

	b, err := api.svc.Update(ctx.Request().Context(), orig.ID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *badgeApi) evaluate(ctx echo.Context) error {
	earned, err := api.svc.Evaluate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, earned)
}

func sortBadges(badges []badge.Badge, ord Ordering) {
	for i := len(ord.Orderings) - 1; i >= 0; i-- {
		o := ord.Orderings[i]
		sort.SliceStable(badges, func(a, b int) bool {
			var less bool
			switch o.Field {
			case "name":
				less = badges[a].Name < badges[b].Name
			case "created_at":
				less = badges[a].CreatedAt.Before(badges[b].CreatedAt)
			default:
				return false
			}
			if !o.Ascending {
				return !less
			}
			return less
		})
	}
}
