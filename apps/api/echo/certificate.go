package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimuhq/darasa/core/certificate"
	"github.com/elimuhq/darasa/core/user"
)

type certificateApi struct {
	svc      certificate.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerCertificateAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := certificateApi{
		svc:      deps.CertSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}

	cg := g.Group("/certificates")

	// un-authed endpoint: anyone holding a code may verify
	cg.GET("/verify/:code", api.verify)

	// authed endpoints
	ag := cg.Group("", jwt)
	ag.POST("", api.issue, adminMiddleware())
	ag.GET("/:id", api.retrieve)
	ag.POST("/:id/revoke", api.revoke, adminMiddleware())
	ag.PUT("/:id/design", api.updateDesign, adminMiddleware())

	g.GET("/students/:id/certificates", api.listForStudent, jwt)
}

// Handlers

func (api *certificateApi) issue(ctx echo.Context) error {
	var data certificate.NewCertificate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCertificate")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cert, err := api.svc.Issue(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, cert)
}

func (api *certificateApi) retrieve(ctx echo.Context) error {
	requester, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	detail, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"), requester)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *certificateApi) verify(ctx echo.Context) error {
	verification, err := api.svc.VerifyPublic(ctx.Request().Context(), ctx.Param("code"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, verification)
}

func (api *certificateApi) listForStudent(ctx echo.Context) error {
	requester, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	details, err := api.svc.ListForStudent(ctx.Request().Context(), ctx.Param("id"), requester)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, details)
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (api *certificateApi) revoke(ctx echo.Context) error {
	var data revokeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to revokeRequest")
	}

	cert, err := api.svc.Revoke(ctx.Request().Context(), ctx.Param("id"), data.Reason)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cert)
}

func (api *certificateApi) updateDesign(ctx echo.Context) error {
	var data certificate.UpdateDesign
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDesign")
	}

	cert, err := api.svc.UpdateDesign(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cert)
}
