package console

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/blockadesystems/caconsole/internal/model"
)

// Certificate listing sort predicates.
const (
	PredicateHost      = "host"
	PredicateIsRevoked = "isRevoked"
)

// CADetailView is a read-only snapshot of one CA and its certificates.
type CADetailView struct {
	CAID         string            `json:"caID"`
	CA           *model.CA         `json:"ca,omitempty"`
	Certificates []CertificateView `json:"certificates"`
	Predicate    string            `json:"predicate"`
	Reverse      bool              `json:"reverse"`
	Links        ArtifactLinks     `json:"links"`
	Errors       map[string]string `json:"errors,omitempty"`
}

// CADetailModel reconciles a CA, its certificates and its CRL into one view.
//
// The CA fetch and the certificate pipeline run independently. Within the
// pipeline the CRL is requested only after the certificate list arrived, and
// the resulting snapshot annotates exactly that list.
type CADetailModel struct {
	api    API
	nav    Navigator
	caID   string
	logger *zap.Logger
	gen    generation

	mu        sync.Mutex
	ca        *model.CA
	certs     []CertificateView
	predicate string
	reverse   bool
	errs      sliceErrors

	// Test hook run between the certificate list and the CRL request.
	afterCertificates func()
}

// NewCADetailModel returns an empty detail view of caID sorted by host.
func NewCADetailModel(api API, nav Navigator, caID string, l *zap.Logger) *CADetailModel {
	return &CADetailModel{
		api:       api,
		nav:       nav,
		caID:      caID,
		logger:    orDefault(l).With(zap.String("view", "ca_detail"), zap.String("ca_id", caID)),
		predicate: PredicateHost,
		errs:      sliceErrors{},
	}
}

// CAID returns the CA this view shows.
func (m *CADetailModel) CAID() string { return m.caID }

// Load runs both fetch pipelines and blocks until they settle. Failures are
// kept in the view and returned joined; state from a failed fetch is not touched.
func (m *CADetailModel) Load(ctx context.Context) error {
	round := m.gen.next()

	var wg sync.WaitGroup
	var caErr, certsErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		caErr = m.fetchCA(ctx, round)
	}()
	go func() {
		defer wg.Done()
		certsErr = m.reconcile(ctx, round)
	}()
	wg.Wait()

	return errors.Join(caErr, certsErr)
}

func (m *CADetailModel) fetchCA(ctx context.Context, round uint64) error {
	ca, err := m.api.GetCA(ctx, m.caID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.gen.current(round) {
		m.logger.Debug("discarding stale CA response", zap.Uint64("round", round))
		return nil
	}
	m.errs.set(SliceCA, err)
	if err != nil {
		m.logger.Warn("failed to fetch CA", zap.Error(err))
		return fmt.Errorf("console: get CA %s: %w", m.caID, err)
	}
	m.ca = ca
	return nil
}

// reconcile fetches the certificate list and, as its continuation, the CRL.
func (m *CADetailModel) reconcile(ctx context.Context, round uint64) error {
	certs, err := m.api.ListCertificates(ctx, m.caID)
	if err != nil {
		if m.applyFailure(round, SliceCertificates, err) {
			m.logger.Warn("failed to list certificates; keeping previous list", zap.Error(err))
			return fmt.Errorf("console: list certificates of CA %s: %w", m.caID, err)
		}
		return nil
	}
	if !m.applyCertificates(round, certs) {
		return nil
	}
	if m.afterCertificates != nil {
		m.afterCertificates()
	}

	crl, err := m.api.GetCRL(ctx, m.caID)
	if err != nil {
		if m.applyFailure(round, SliceCRL, err) {
			m.logger.Warn("failed to fetch CRL; revocation status unknown", zap.Error(err))
			return fmt.Errorf("console: get CRL of CA %s: %w", m.caID, err)
		}
		return nil
	}
	m.applyRevocations(round, certs, NewRevocationSet(crl))
	return nil
}

// applyCertificates shows a freshly fetched list with unknown status.
func (m *CADetailModel) applyCertificates(round uint64, certs []model.Certificate) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.gen.current(round) {
		m.logger.Debug("discarding stale certificate list", zap.Uint64("round", round))
		return false
	}
	m.certs = (*RevocationSet)(nil).Annotate(certs)
	m.errs.set(SliceCertificates, nil)
	return true
}

// applyRevocations replaces the list with certs annotated from one CRL snapshot.
func (m *CADetailModel) applyRevocations(round uint64, certs []model.Certificate, revoked *RevocationSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.gen.current(round) {
		m.logger.Debug("discarding stale CRL", zap.Uint64("round", round))
		return
	}
	m.certs = revoked.Annotate(certs)
	m.errs.set(SliceCRL, nil)
	m.logger.Debug("certificates reconciled", zap.Int("certificates", len(certs)), zap.Int("revoked", revoked.Len()))
}

func (m *CADetailModel) applyFailure(round uint64, slice string, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.gen.current(round) {
		return false
	}
	m.errs.set(slice, err)
	return true
}

// IssueCertificate asks the CA for a certificate and navigates to it.
func (m *CADetailModel) IssueCertificate(ctx context.Context, spec model.CertSpec) (*model.Certificate, error) {
	cert, err := m.api.IssueCertificate(ctx, m.caID, spec)
	if err != nil {
		m.logger.Warn("certificate request rejected", zap.String("host", spec.Host), zap.Error(err))
		return nil, &MutationError{Op: model.OperationIssueCertificate, CAID: m.caID, Err: err}
	}
	m.logger.Info("certificate issued", zap.String("serial_number", cert.SerialNumber), zap.String("host", cert.Host))
	if m.nav != nil {
		m.nav.Navigate(PathCert(m.caID, cert.SerialNumber))
	}
	return cert, nil
}

// SetOrder selects the sort predicate. Unknown predicates fall back to host.
func (m *CADetailModel) SetOrder(predicate string, reverse bool) {
	switch predicate {
	case PredicateHost, PredicateSerialNumber, PredicateIsRevoked:
	default:
		predicate = PredicateHost
	}
	m.mu.Lock()
	m.predicate = predicate
	m.reverse = reverse
	m.mu.Unlock()
}

// View returns the CA and its certificates in the selected order.
func (m *CADetailModel) View() CADetailView {
	m.mu.Lock()
	defer m.mu.Unlock()

	certs := make([]CertificateView, len(m.certs))
	copy(certs, m.certs)
	less := certLess(m.predicate)
	sort.SliceStable(certs, func(i, j int) bool {
		if m.reverse {
			return less(certs[j], certs[i])
		}
		return less(certs[i], certs[j])
	})

	var ca *model.CA
	if m.ca != nil {
		c := *m.ca
		ca = &c
	}
	return CADetailView{
		CAID:         m.caID,
		CA:           ca,
		Certificates: certs,
		Predicate:    m.predicate,
		Reverse:      m.reverse,
		Links:        caLinks(m.caID),
		Errors:       m.errs.render(),
	}
}

// Close discards responses still in flight.
func (m *CADetailModel) Close() {
	m.gen.next()
}

func certLess(predicate string) func(a, b CertificateView) bool {
	return func(a, b CertificateView) bool {
		switch predicate {
		case PredicateSerialNumber:
			if a.SerialNumber != b.SerialNumber {
				return a.SerialNumber < b.SerialNumber
			}
		case PredicateIsRevoked:
			if a.IsRevoked() != b.IsRevoked() {
				return !a.IsRevoked()
			}
			if a.Host != b.Host {
				return a.Host < b.Host
			}
		default:
			if a.Host != b.Host {
				return a.Host < b.Host
			}
		}
		return a.SerialNumber < b.SerialNumber
	}
}
