package console

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/blockadesystems/caconsole/internal/model"
)

// CA listing sort predicates.
const (
	PredicateName         = "name"
	PredicateSerialNumber = "serialNumber"
)

// CAListView is a read-only snapshot of the CA listing.
type CAListView struct {
	CAs       []model.CA        `json:"cas"`
	Predicate string            `json:"predicate"`
	Reverse   bool              `json:"reverse"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// CAListModel lists CAs and submits new-CA requests.
type CAListModel struct {
	api    API
	nav    Navigator
	logger *zap.Logger
	gen    generation

	mu        sync.Mutex
	cas       []model.CA
	loaded    bool
	predicate string
	reverse   bool
	errs      sliceErrors
}

// NewCAListModel returns an empty listing sorted by name, ascending.
func NewCAListModel(api API, nav Navigator, l *zap.Logger) *CAListModel {
	return &CAListModel{
		api:       api,
		nav:       nav,
		logger:    orDefault(l).With(zap.String("view", "ca_list")),
		predicate: PredicateName,
		errs:      sliceErrors{},
	}
}

// NewCASpec returns the defaults of the create and import forms.
func NewCASpec() model.CASpec {
	return model.CASpec{Visible: true}
}

// List fetches every CA and replaces the listing. On failure the previous
// listing is kept and the error is returned. A response overtaken by a later
// List or Close is dropped and returns nil.
func (m *CAListModel) List(ctx context.Context) error {
	round := m.gen.next()
	cas, err := m.api.ListCAs(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.gen.current(round) {
		m.logger.Debug("discarding stale CA listing", zap.Uint64("round", round), zap.Error(err))
		return nil
	}
	if err != nil {
		m.errs.set(SliceCAs, err)
		m.logger.Warn("failed to list CAs", zap.Error(err))
		return fmt.Errorf("console: list CAs: %w", err)
	}
	m.cas = cas
	m.loaded = true
	m.errs.set(SliceCAs, nil)
	m.logger.Debug("CA listing replaced", zap.Int("count", len(cas)))
	return nil
}

// Load is List; it lets a Session drive the listing like any other page.
func (m *CAListModel) Load(ctx context.Context) error {
	return m.List(ctx)
}

// Create submits spec unchanged and navigates to the CA the server created.
func (m *CAListModel) Create(ctx context.Context, spec model.CASpec) (*model.CA, error) {
	return submitCA(ctx, m.api, m.nav, m.logger, spec)
}

// Import submits an import spec; it behaves exactly like Create.
func (m *CAListModel) Import(ctx context.Context, spec model.CASpec) (*model.CA, error) {
	return submitCA(ctx, m.api, m.nav, m.logger, spec)
}

// SetOrder selects the sort predicate. Unknown predicates fall back to name.
func (m *CAListModel) SetOrder(predicate string, reverse bool) {
	switch predicate {
	case PredicateName, PredicateSerialNumber:
	default:
		predicate = PredicateName
	}
	m.mu.Lock()
	m.predicate = predicate
	m.reverse = reverse
	m.mu.Unlock()
}

// Loaded reports whether a listing has been received.
func (m *CAListModel) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// View returns the listing in the selected order.
func (m *CAListModel) View() CAListView {
	m.mu.Lock()
	defer m.mu.Unlock()

	cas := make([]model.CA, len(m.cas))
	copy(cas, m.cas)
	key := func(ca model.CA) string { return ca.Name }
	if m.predicate == PredicateSerialNumber {
		key = func(ca model.CA) string { return ca.SerialNumber }
	}
	sort.SliceStable(cas, func(i, j int) bool {
		a, b := cas[i], cas[j]
		if m.reverse {
			a, b = b, a
		}
		if ka, kb := key(a), key(b); ka != kb {
			return ka < kb
		}
		return a.SerialNumber < b.SerialNumber
	})

	return CAListView{
		CAs:       cas,
		Predicate: m.predicate,
		Reverse:   m.reverse,
		Errors:    m.errs.render(),
	}
}

// Close discards responses still in flight.
func (m *CAListModel) Close() {
	m.gen.next()
}

// CAImportModel backs the CA import form.
type CAImportModel struct {
	api    API
	nav    Navigator
	logger *zap.Logger
}

// NewCAImportModel returns the import form model.
func NewCAImportModel(api API, nav Navigator, l *zap.Logger) *CAImportModel {
	return &CAImportModel{api: api, nav: nav, logger: orDefault(l).With(zap.String("view", "ca_import"))}
}

// Form returns the form defaults.
func (m *CAImportModel) Form() model.CASpec {
	return NewCASpec()
}

// Import submits spec unchanged and navigates to the CA the server created.
func (m *CAImportModel) Import(ctx context.Context, spec model.CASpec) (*model.CA, error) {
	return submitCA(ctx, m.api, m.nav, m.logger, spec)
}

// Load has nothing to fetch.
func (m *CAImportModel) Load(context.Context) error { return nil }

// Close is a no-op.
func (m *CAImportModel) Close() {}

func submitCA(ctx context.Context, api API, nav Navigator, l *zap.Logger, spec model.CASpec) (*model.CA, error) {
	created, err := api.CreateCA(ctx, spec)
	if err != nil {
		l.Warn("CA request rejected", zap.Bool("import", spec.IsImport()), zap.Error(err))
		return nil, &MutationError{Op: model.OperationCreateCA, Err: err}
	}
	l.Info("CA created", zap.String("ca_id", created.SerialNumber), zap.Bool("import", spec.IsImport()))
	if nav != nil {
		nav.Navigate(PathCA(created.SerialNumber))
	}
	return created, nil
}
