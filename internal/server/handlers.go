package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/blockadesystems/caconsole/internal/auth"
	"github.com/blockadesystems/caconsole/internal/client"
	"github.com/blockadesystems/caconsole/internal/config"
	"github.com/blockadesystems/caconsole/internal/console"
	"github.com/blockadesystems/caconsole/internal/journal"
	"github.com/blockadesystems/caconsole/internal/model"
	"github.com/blockadesystems/caconsole/internal/storage"
)

// pageInfo is the body of the static pages.
type pageInfo struct {
	Page        string `json:"page"`
	ProductName string `json:"productName"`
	Contact     string `json:"contact,omitempty"`
}

// mutationFailure is the 502 body returned when the CA API rejects a mutation.
type mutationFailure struct {
	Message        string `json:"message"`
	Operation      string `json:"operation"`
	UpstreamStatus int    `json:"upstreamStatus,omitempty"`
}

// redirectNavigator remembers where a view-model asked to go.
type redirectNavigator struct {
	path string
}

func (n *redirectNavigator) Navigate(path string) { n.path = path }

// requestAPI returns the CA API for this request, journaling mutations under
// the token subject and request ID.
func requestAPI(c echo.Context, reqLogger *zap.Logger) console.API {
	upstream := c.Get("api").(console.API)
	store, _ := c.Get("store").(storage.Storage)
	if store == nil {
		return upstream
	}
	actor := "anonymous"
	if claims := auth.ClaimsFrom(c); claims != nil {
		actor = claims.Subject
	}
	return journal.Wrap(upstream, store,
		journal.WithActor(actor),
		journal.WithRequestID(c.Response().Header().Get(echo.HeaderXRequestID)),
		journal.WithLogger(reqLogger),
	)
}

func handlerLogger(c echo.Context, name string) *zap.Logger {
	return c.Get("logger").(*zap.Logger).With(zap.String("handler", name))
}

func orderParams(c echo.Context) (string, bool) {
	reverse, _ := strconv.ParseBool(c.QueryParam("reverse"))
	return c.QueryParam("predicate"), reverse
}

func mutationError(reqLogger *zap.Logger, err error) error {
	failure := mutationFailure{Message: err.Error()}
	var mErr *console.MutationError
	if errors.As(err, &mErr) {
		failure.Operation = string(mErr.Op)
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		failure.UpstreamStatus = apiErr.StatusCode
	}
	reqLogger.Warn("CA API rejected mutation", zap.Error(err), zap.Int("upstream_status", failure.UpstreamStatus))
	return echo.NewHTTPError(http.StatusBadGateway, failure)
}

// HandleAbout handles GET /about.
func HandleAbout(c echo.Context) error {
	cfg := c.Get("cfg").(*config.Config)
	return c.JSON(http.StatusOK, pageInfo{Page: "about", ProductName: cfg.ProductName})
}

// HandleContact handles GET /contact.
func HandleContact(c echo.Context) error {
	cfg := c.Get("cfg").(*config.Config)
	return c.JSON(http.StatusOK, pageInfo{Page: "contact", ProductName: cfg.ProductName, Contact: cfg.Contact})
}

// HandleListCAs handles GET /ca. Fetch failures are reported in the view's errors.
func HandleListCAs(c echo.Context) error {
	reqLogger := handlerLogger(c, "HandleListCAs")
	m := console.NewCAListModel(requestAPI(c, reqLogger), nil, reqLogger)
	m.SetOrder(orderParams(c))
	if err := m.List(c.Request().Context()); err != nil {
		reqLogger.Warn("CA listing incomplete", zap.Error(err))
	}
	return c.JSON(http.StatusOK, m.View())
}

// HandleCreateCA handles POST /ca and redirects to the created CA.
func HandleCreateCA(c echo.Context) error {
	reqLogger := handlerLogger(c, "HandleCreateCA")
	spec := console.NewCASpec()
	if err := c.Bind(&spec); err != nil {
		reqLogger.Warn("Failed to bind request body", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}

	nav := &redirectNavigator{}
	m := console.NewCAListModel(requestAPI(c, reqLogger), nav, reqLogger)
	if _, err := m.Create(c.Request().Context(), spec); err != nil {
		return mutationError(reqLogger, err)
	}
	return c.Redirect(http.StatusSeeOther, nav.path)
}

// HandleImportForm handles GET /importca.
func HandleImportForm(c echo.Context) error {
	m := console.NewCAImportModel(nil, nil, nil)
	return c.JSON(http.StatusOK, m.Form())
}

// HandleImportCA handles POST /importca and redirects to the imported CA.
func HandleImportCA(c echo.Context) error {
	reqLogger := handlerLogger(c, "HandleImportCA")
	spec := console.NewCASpec()
	if err := c.Bind(&spec); err != nil {
		reqLogger.Warn("Failed to bind request body", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}

	nav := &redirectNavigator{}
	m := console.NewCAImportModel(requestAPI(c, reqLogger), nav, reqLogger)
	if _, err := m.Import(c.Request().Context(), spec); err != nil {
		return mutationError(reqLogger, err)
	}
	return c.Redirect(http.StatusSeeOther, nav.path)
}

// HandleCADetail handles GET /ca/:caId.
func HandleCADetail(c echo.Context) error {
	reqLogger := handlerLogger(c, "HandleCADetail")
	m := console.NewCADetailModel(requestAPI(c, reqLogger), nil, c.Param("caId"), reqLogger)
	m.SetOrder(orderParams(c))
	if err := m.Load(c.Request().Context()); err != nil {
		reqLogger.Warn("CA view incomplete", zap.Error(err))
	}
	return c.JSON(http.StatusOK, m.View())
}

// HandleIssueCertificate handles POST /ca/:caId/cert and redirects to the new certificate.
func HandleIssueCertificate(c echo.Context) error {
	reqLogger := handlerLogger(c, "HandleIssueCertificate")
	var spec model.CertSpec
	if err := c.Bind(&spec); err != nil {
		reqLogger.Warn("Failed to bind request body", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}

	nav := &redirectNavigator{}
	m := console.NewCADetailModel(requestAPI(c, reqLogger), nav, c.Param("caId"), reqLogger)
	if _, err := m.IssueCertificate(c.Request().Context(), spec); err != nil {
		return mutationError(reqLogger, err)
	}
	return c.Redirect(http.StatusSeeOther, nav.path)
}

// HandleCertDetail handles GET /ca/:caId/cert/:certId.
func HandleCertDetail(c echo.Context) error {
	reqLogger := handlerLogger(c, "HandleCertDetail")
	m := console.NewCertDetailModel(requestAPI(c, reqLogger), c.Param("caId"), c.Param("certId"), reqLogger)
	if err := m.Load(c.Request().Context()); err != nil {
		reqLogger.Warn("certificate view incomplete", zap.Error(err))
	}
	return c.JSON(http.StatusOK, m.View())
}

// HandleRevoke handles POST /ca/:caId/cert/:certId/revoke and returns the reloaded view.
func HandleRevoke(c echo.Context) error {
	return changeRevocation(c, "HandleRevoke", (*console.CertDetailModel).Revoke)
}

// HandleUnrevoke handles POST /ca/:caId/cert/:certId/unrevoke and returns the reloaded view.
func HandleUnrevoke(c echo.Context) error {
	return changeRevocation(c, "HandleUnrevoke", (*console.CertDetailModel).Unrevoke)
}

func changeRevocation(c echo.Context, name string, mutate func(*console.CertDetailModel, context.Context) error) error {
	reqLogger := handlerLogger(c, name)
	m := console.NewCertDetailModel(requestAPI(c, reqLogger), c.Param("caId"), c.Param("certId"), reqLogger)

	err := mutate(m, c.Request().Context())
	var mErr *console.MutationError
	if errors.As(err, &mErr) {
		return mutationError(reqLogger, err)
	}
	if err != nil {
		reqLogger.Warn("reload after revocation change incomplete", zap.Error(err))
	}
	return c.JSON(http.StatusOK, m.View())
}

// HandleJournal handles GET /journal?limit=&caId=.
func HandleJournal(c echo.Context) error {
	cfg := c.Get("cfg").(*config.Config)
	reqLogger := handlerLogger(c, "HandleJournal")
	store, _ := c.Get("store").(storage.Storage)
	if store == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Journal is disabled")
	}

	limit := cfg.JournalLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	actions, err := store.ListActions(c.Request().Context(), storage.ActionFilter{CAID: c.QueryParam("caId"), Limit: limit})
	if err != nil {
		reqLogger.Error("Failed to list journal actions", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to retrieve journal")
	}
	return c.JSON(http.StatusOK, actions)
}
