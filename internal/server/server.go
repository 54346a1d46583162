package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/blockadesystems/caconsole/internal/auth"
	"github.com/blockadesystems/caconsole/internal/config"
	"github.com/blockadesystems/caconsole/internal/console"
	"github.com/blockadesystems/caconsole/internal/storage"
)

// ApplyCommonMiddleware applies essential middleware to an Echo instance.
// It injects dependencies into the context.
func ApplyCommonMiddleware(e *echo.Echo, api console.API, store storage.Storage, cfg *config.Config, baseLogger *zap.Logger) {
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))

	// Middleware to set context values
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			reqLogger := baseLogger.With(zap.String("request_id", reqID))

			c.Set("api", api)
			c.Set("cfg", cfg)
			c.Set("store", store)
			c.Set("logger", reqLogger)
			return next(c)
		}
	})

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			l, _ := c.Get("logger").(*zap.Logger)
			if l == nil {
				l = baseLogger
			}
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency.Round(time.Microsecond)),
			}
			if v.Error != nil {
				l.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			l.Info("request", fields...)
			return nil
		},
	}))
}

// SetupRouter defines the console routes. Mutations require a token carrying
// the matching role when verifier is non-nil.
func SetupRouter(e *echo.Echo, verifier *auth.Verifier) {
	requireRole := func(role string) []echo.MiddlewareFunc {
		if verifier == nil {
			return nil
		}
		return []echo.MiddlewareFunc{auth.TokenMiddleware(verifier, role)}
	}

	e.GET(console.PathAbout, HandleAbout)
	e.GET(console.PathContact, HandleContact)

	e.GET(console.PathCAList, HandleListCAs)
	e.POST(console.PathCAList, HandleCreateCA, requireRole(auth.RoleIssuer)...)
	e.GET(console.PathImportCA, HandleImportForm)
	e.POST(console.PathImportCA, HandleImportCA, requireRole(auth.RoleIssuer)...)

	caGroup := e.Group("/ca/:caId")
	caGroup.GET("", HandleCADetail)
	caGroup.POST("/cert", HandleIssueCertificate, requireRole(auth.RoleIssuer)...)
	caGroup.GET("/cert/:certId", HandleCertDetail)
	caGroup.POST("/cert/:certId/revoke", HandleRevoke, requireRole(auth.RoleRevoker)...)
	caGroup.POST("/cert/:certId/unrevoke", HandleUnrevoke, requireRole(auth.RoleRevoker)...)

	e.GET("/journal", HandleJournal, requireRole(auth.RoleAdmin)...)

	// Anything else lands on the CA listing.
	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.Redirect(http.StatusFound, console.PathCAList)
	})
}

// New builds a ready-to-serve console.
func New(api console.API, store storage.Storage, cfg *config.Config, verifier *auth.Verifier, baseLogger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HidePort = true
	ApplyCommonMiddleware(e, api, store, cfg, baseLogger)
	SetupRouter(e, verifier)
	return e
}
