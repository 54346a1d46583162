package console

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Page is a view-model opened by a Session.
type Page interface {
	Load(ctx context.Context) error
	Close()
}

// StaticPage is a page with nothing to fetch (about, contact).
type StaticPage struct {
	Route Route
}

// Load has nothing to fetch.
func (StaticPage) Load(context.Context) error { return nil }

// Close is a no-op.
func (StaticPage) Close() {}

// Session holds the page of the current route. Navigating closes the open
// page, so its late responses are dropped, and opens a fresh one.
type Session struct {
	api    API
	logger *zap.Logger

	mu    sync.Mutex
	route Route
	page  Page
}

var _ Navigator = (*Session)(nil)

// NewSession returns a session with no page open.
func NewSession(api API, l *zap.Logger) *Session {
	return &Session{api: api, logger: orDefault(l)}
}

// Navigate closes the current page and opens the one for path.
func (s *Session) Navigate(path string) {
	route := ParseRoute(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page != nil {
		s.page.Close()
	}
	s.route = route
	s.page = s.open(route)
	s.logger.Debug("navigated", zap.String("path", route.Path()), zap.Stringer("page", route.Kind))
}

func (s *Session) open(r Route) Page {
	switch r.Kind {
	case RouteAbout, RouteContact:
		return StaticPage{Route: r}
	case RouteImportCA:
		return NewCAImportModel(s.api, s, s.logger)
	case RouteCADetail:
		return NewCADetailModel(s.api, s, r.CAID, s.logger)
	case RouteCertDetail:
		return NewCertDetailModel(s.api, r.CAID, r.CertID, s.logger)
	}
	return NewCAListModel(s.api, s, s.logger)
}

// Current returns the open route and page; page is nil before the first Navigate.
func (s *Session) Current() (Route, Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route, s.page
}

// Load fetches the open page.
func (s *Session) Load(ctx context.Context) error {
	_, page := s.Current()
	if page == nil {
		return ErrNotLoaded
	}
	return page.Load(ctx)
}

// Close closes the open page.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page != nil {
		s.page.Close()
	}
}
