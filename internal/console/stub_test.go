package console

import (
	"context"
	"errors"
	"sync"

	"github.com/blockadesystems/caconsole/internal/model"
)

var errBoom = errors.New("boom")

// stubAPI is a scriptable API. Unset functions answer with errBoom.
type stubAPI struct {
	mu    sync.Mutex
	calls []string

	listCAs          func() ([]model.CA, error)
	createCA         func(model.CASpec) (*model.CA, error)
	getCA            func(caID string) (*model.CA, error)
	listCertificates func(caID string) ([]model.Certificate, error)
	getCertificate   func(caID, certID string) (*model.Certificate, error)
	issueCertificate func(caID string, spec model.CertSpec) (*model.Certificate, error)
	getCRL           func(caID string) (*model.CRL, error)
	revoke           func(caID, serial string) error
	unrevoke         func(caID, serial string) error
}

func (s *stubAPI) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *stubAPI) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *stubAPI) ListCAs(context.Context) ([]model.CA, error) {
	s.record("ListCAs")
	if s.listCAs == nil {
		return nil, errBoom
	}
	return s.listCAs()
}

func (s *stubAPI) CreateCA(_ context.Context, spec model.CASpec) (*model.CA, error) {
	s.record("CreateCA")
	if s.createCA == nil {
		return nil, errBoom
	}
	return s.createCA(spec)
}

func (s *stubAPI) GetCA(_ context.Context, caID string) (*model.CA, error) {
	s.record("GetCA")
	if s.getCA == nil {
		return nil, errBoom
	}
	return s.getCA(caID)
}

func (s *stubAPI) ListCertificates(_ context.Context, caID string) ([]model.Certificate, error) {
	s.record("ListCertificates")
	if s.listCertificates == nil {
		return nil, errBoom
	}
	return s.listCertificates(caID)
}

func (s *stubAPI) GetCertificate(_ context.Context, caID, certID string) (*model.Certificate, error) {
	s.record("GetCertificate")
	if s.getCertificate == nil {
		return nil, errBoom
	}
	return s.getCertificate(caID, certID)
}

func (s *stubAPI) IssueCertificate(_ context.Context, caID string, spec model.CertSpec) (*model.Certificate, error) {
	s.record("IssueCertificate")
	if s.issueCertificate == nil {
		return nil, errBoom
	}
	return s.issueCertificate(caID, spec)
}

func (s *stubAPI) GetCRL(_ context.Context, caID string) (*model.CRL, error) {
	s.record("GetCRL")
	if s.getCRL == nil {
		return nil, errBoom
	}
	return s.getCRL(caID)
}

func (s *stubAPI) Revoke(_ context.Context, caID, serial string) error {
	s.record("Revoke")
	if s.revoke == nil {
		return errBoom
	}
	return s.revoke(caID, serial)
}

func (s *stubAPI) Unrevoke(_ context.Context, caID, serial string) error {
	s.record("Unrevoke")
	if s.unrevoke == nil {
		return errBoom
	}
	return s.unrevoke(caID, serial)
}

// recorder is a Navigator remembering every path it was sent to.
type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) Navigate(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func scenarioCerts() []model.Certificate {
	return []model.Certificate{
		{SerialNumber: "2001", Host: "a.example.com"},
		{SerialNumber: "2002", Host: "b.example.com"},
	}
}
