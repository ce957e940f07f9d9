package sabitcms

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/eringen/sabitcms/content"
	"github.com/eringen/sabitcms/defaults"
)

var bcryptCost = 12

type credentials struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type setupRequest struct {
	SiteTitle string `json:"siteTitle"`
	credentials
}

func (a *App) handleSetupStatus(c echo.Context) error {
	n, err := a.Store.CountUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "isSetup": n > 0})
}

func (a *App) handleSetupRun(c echo.Context) error {
	var req setupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return echo.NewHTTPError(http.StatusBadRequest, "please provide a valid email")
	}
	if len(req.Password) < 6 {
		return echo.NewHTTPError(http.StatusBadRequest, "password must be at least 6 characters long")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return err
	}
	user, err := a.Store.Setup(c.Request().Context(), SetupInput{
		SiteTitle:     strings.TrimSpace(req.SiteTitle),
		Email:         req.Email,
		PasswordHash:  string(hash),
		IndexTemplate: defaults.IndexTemplate(),
		PostTemplate:  defaults.PostTemplate(),
	})
	if errors.Is(err, ErrAlreadySetup) {
		return echo.NewHTTPError(http.StatusForbidden, "system is already set up")
	}
	if err != nil {
		return err
	}
	// Any artifacts left over from a previous install are stale.
	a.Builder.InvalidateAll()
	a.Feed.Invalidate()
	return c.JSON(http.StatusCreated, echo.Map{
		"status":  "success",
		"message": "setup completed successfully",
		"user":    echo.Map{"id": user.ID, "email": user.Email},
	})
}

func (a *App) handleLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts, try again later")
	}
	var req credentials
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "please provide email and password")
	}
	user, err := a.Store.GetUserByEmail(c.Request().Context(), req.Email)
	if err != nil && !errors.Is(err, content.ErrNotFound) {
		return err
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		a.loginLimiter.Record(ip)
		return echo.NewHTTPError(http.StatusUnauthorized, "incorrect email or password")
	}
	if err := setAdminSession(c, user.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "data": echo.Map{"user": user}})
}

func handleLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleMe(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "data": echo.Map{"id": AdminID(c)}})
}
