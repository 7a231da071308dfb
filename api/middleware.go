package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

const (
	ctxUserKey    = "taskboard.user"
	ctxMetricsKey = "taskboard.metrics"
)

// GzipRequestMiddleware decompresses gzip-encoded request bodies so handlers
// see plain JSON. Invalid gzip payloads are rejected with 400.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			gr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid gzip body"})
			}

			req.Body = &gzipReadCloser{Reader: gr, body: req.Body}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

func hasGzipEncoding(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type gzipReadCloser struct {
	*gzip.Reader
	body io.Closer
}

func (g *gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.body.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// observe records request metrics for every route it wraps.
func observe(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			metrics, ctx := newRequestMetrics(c.Request().Context(), logger, c.Request().Method, c.Path())
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(ctxMetricsKey, metrics)
			defer func() {
				status := c.Response().Status
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
				metrics.Log(status, err)
			}()
			return next(c)
		}
	}
}

// requireSession authenticates the bearer token and loads the session user.
// A token is only honoured while its subject is the persisted session user.
func requireSession(d *Deps) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			metrics := metricsFrom(c)

			authStart := time.Now()
			userID, err := d.Sessions.UserIDFromAuthHeader(authHeader(c))
			if err != nil {
				metrics.ObserveAuth(time.Since(authStart))
				metrics.SetErrorStage("auth")
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
			}
			user, found, err := d.Auth.CurrentUser(c.Request().Context())
			metrics.ObserveAuth(time.Since(authStart))
			if err != nil {
				return internalError(c, "session", err)
			}
			if !found || user.ID != userID {
				metrics.SetErrorStage("auth")
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: errSessionExpired.Error()})
			}
			c.Set(ctxUserKey, &user)
			return next(c)
		}
	}
}

// requireAdmin must run after requireSession.
func requireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !domain.CanManageUsers(sessionUser(c)) {
				return forbidden(c)
			}
			return next(c)
		}
	}
}

func sessionUser(c echo.Context) *domain.User {
	u, _ := c.Get(ctxUserKey).(*domain.User)
	return u
}

func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(ctxMetricsKey).(*requestMetrics)
	return m
}
