package console

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/blockadesystems/caconsole/internal/model"
)

var hostPattern = regexp.MustCompile(`^(\w+\.)+\w+$`)

// IsValidHost reports whether host is a dotted name of word-character labels.
// The result is advisory only.
func IsValidHost(host string) bool {
	return hostPattern.MatchString(host)
}

// CertDetailView is a read-only snapshot of one certificate.
type CertDetailView struct {
	CAID        string             `json:"caID"`
	CertID      string             `json:"certID"`
	CA          *model.CA          `json:"ca,omitempty"`
	Certificate *model.Certificate `json:"certificate,omitempty"`
	Status      RevocationStatus   `json:"status"`
	CertRevoked bool               `json:"certRevoked"`
	IsValidLink bool               `json:"isValidLink"`
	Links       ArtifactLinks      `json:"links"`
	Errors      map[string]string  `json:"errors,omitempty"`
}

// CertDetailModel shows one certificate and drives its revocation.
type CertDetailModel struct {
	api    API
	caID   string
	certID string
	logger *zap.Logger
	gen    generation

	mu          sync.Mutex
	ca          *model.CA
	cert        *model.Certificate
	revoked     *RevocationSet
	isValidLink bool
	errs        sliceErrors
}

// NewCertDetailModel returns an empty view of certificate certID under caID.
func NewCertDetailModel(api API, caID, certID string, l *zap.Logger) *CertDetailModel {
	return &CertDetailModel{
		api:    api,
		caID:   caID,
		certID: certID,
		logger: orDefault(l).With(zap.String("view", "cert_detail"), zap.String("ca_id", caID), zap.String("cert_id", certID)),
		errs:   sliceErrors{},
	}
}

// Load fetches the CA, its CRL and the certificate concurrently. Each
// response updates only its own slice of the view.
func (m *CertDetailModel) Load(ctx context.Context) error {
	round := m.gen.next()

	var wg sync.WaitGroup
	errs := make([]error, 3)
	wg.Add(3)
	go func() {
		defer wg.Done()
		ca, err := m.api.GetCA(ctx, m.caID)
		errs[0] = m.apply(round, SliceCA, err, func() { m.ca = ca })
	}()
	go func() {
		defer wg.Done()
		crl, err := m.api.GetCRL(ctx, m.caID)
		errs[1] = m.apply(round, SliceCRL, err, func() { m.revoked = NewRevocationSet(crl) })
	}()
	go func() {
		defer wg.Done()
		cert, err := m.api.GetCertificate(ctx, m.caID, m.certID)
		errs[2] = m.apply(round, SliceCertificate, err, func() {
			if cert.SerialNumber != "" && cert.SerialNumber != m.certID {
				m.logger.Warn("certificate serial number differs from its id; revocation follows the serial number",
					zap.String("serial_number", cert.SerialNumber))
			}
			m.cert = cert
			m.isValidLink = IsValidHost(cert.Host)
		})
	}()
	wg.Wait()

	return errors.Join(errs...)
}

func (m *CertDetailModel) apply(round uint64, slice string, err error, update func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.gen.current(round) {
		m.logger.Debug("discarding stale response", zap.String("slice", slice), zap.Uint64("round", round))
		return nil
	}
	m.errs.set(slice, err)
	if err != nil {
		m.logger.Warn("fetch failed", zap.String("slice", slice), zap.Error(err))
		return fmt.Errorf("console: fetch %s of certificate %s/%s: %w", slice, m.caID, m.certID, err)
	}
	update()
	return nil
}

// Revoke adds the certificate to the CA's CRL, then reloads the view.
// A rejected request leaves the view untouched.
func (m *CertDetailModel) Revoke(ctx context.Context) error {
	return m.mutate(ctx, model.OperationRevoke, m.api.Revoke)
}

// Unrevoke removes the certificate from the CA's CRL, then reloads the view.
func (m *CertDetailModel) Unrevoke(ctx context.Context) error {
	return m.mutate(ctx, model.OperationUnrevoke, m.api.Unrevoke)
}

func (m *CertDetailModel) mutate(ctx context.Context, op model.Operation, call func(context.Context, string, string) error) error {
	serial := m.serialNumber()
	if err := call(ctx, m.caID, serial); err != nil {
		m.logger.Warn("revocation change rejected", zap.String("operation", string(op)), zap.Error(err))
		return &MutationError{Op: op, CAID: m.caID, Err: err}
	}
	m.logger.Info("revocation change accepted", zap.String("operation", string(op)), zap.String("serial_number", serial))
	return m.Load(ctx)
}

// serialNumber is the id revocation acts on and is checked against.
func (m *CertDetailModel) serialNumber() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serialNumberLocked()
}

// serialNumberLocked prefers the serial of the fetched certificate over the
// route id; callers hold m.mu.
func (m *CertDetailModel) serialNumberLocked() string {
	if m.cert != nil && m.cert.SerialNumber != "" {
		return m.cert.SerialNumber
	}
	return m.certID
}

// CertRevoked reports whether the last CRL snapshot lists the certificate.
func (m *CertDetailModel) CertRevoked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked.Contains(m.serialNumberLocked())
}

// View returns the current snapshot.
func (m *CertDetailModel) View() CertDetailView {
	m.mu.Lock()
	defer m.mu.Unlock()

	serial := m.serialNumberLocked()
	v := CertDetailView{
		CAID:        m.caID,
		CertID:      m.certID,
		Status:      m.revoked.Status(serial),
		CertRevoked: m.revoked.Contains(serial),
		IsValidLink: m.isValidLink,
		Links:       certLinks(m.caID, m.certID),
		Errors:      m.errs.render(),
	}
	if m.ca != nil {
		ca := *m.ca
		v.CA = &ca
	}
	if m.cert != nil {
		cert := *m.cert
		v.Certificate = &cert
	}
	return v
}

// Close discards responses still in flight.
func (m *CertDetailModel) Close() {
	m.gen.next()
}
