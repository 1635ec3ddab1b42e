package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Authenticated bool      `json:"authenticated"`
	Username      string    `json:"username,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
}

type Handler struct {
	gate         *Gate
	secureCookie bool
}

// NewHandler serves the session endpoints. secureCookie marks the session
// cookie Secure, which browsers only send over HTTPS.
func NewHandler(gate *Gate, secureCookie bool) *Handler {
	return &Handler{gate: gate, secureCookie: secureCookie}
}

// RegisterRoutes mounts /auth under api. Login attempts pass through limit.
func (h *Handler) RegisterRoutes(api *echo.Group, limit echo.MiddlewareFunc) {
	g := api.Group("/auth")
	g.POST("/login", h.Login, limit)
	g.POST("/logout", h.Logout)
	g.GET("/session", h.Session)
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Username == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
	}

	sess, err := h.gate.Login(c.Request().Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, ErrLocked):
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create session")
	}

	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) Logout(c echo.Context) error {
	_ = h.gate.Logout(TokenFromRequest(c))
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return c.NoContent(http.StatusNoContent)
}

// Session reports whether the caller holds a live session.
func (h *Handler) Session(c echo.Context) error {
	claims, err := h.gate.Authenticate(TokenFromRequest(c))
	if err != nil {
		return c.JSON(http.StatusOK, sessionResponse{Authenticated: false})
	}
	return c.JSON(http.StatusOK, sessionResponse{
		Authenticated: true,
		Username:      claims.Subject,
		ExpiresAt:     claims.ExpiresAt.Time,
	})
}
