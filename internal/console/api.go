package console

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/blockadesystems/caconsole/internal/client"
	"github.com/blockadesystems/caconsole/internal/model"
)

var logger *zap.Logger

func init() {
	logger = zap.L().With(zap.String("package", "console"))
}

// API is the set of CA REST operations the view-models depend on.
type API interface {
	ListCAs(ctx context.Context) ([]model.CA, error)
	CreateCA(ctx context.Context, spec model.CASpec) (*model.CA, error)
	GetCA(ctx context.Context, caID string) (*model.CA, error)
	ListCertificates(ctx context.Context, caID string) ([]model.Certificate, error)
	GetCertificate(ctx context.Context, caID, certID string) (*model.Certificate, error)
	IssueCertificate(ctx context.Context, caID string, spec model.CertSpec) (*model.Certificate, error)
	GetCRL(ctx context.Context, caID string) (*model.CRL, error)
	Revoke(ctx context.Context, caID, serialNumber string) error
	Unrevoke(ctx context.Context, caID, serialNumber string) error
}

var _ API = (*client.Client)(nil)

// Navigator receives route changes requested by a view-model after a successful mutation.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

// Navigate calls f(path).
func (f NavigatorFunc) Navigate(path string) { f(path) }

// ErrNotLoaded is returned when an operation needs a view that has not been opened.
var ErrNotLoaded = errors.New("console: no view loaded")

// MutationError reports a create, issue, revoke or unrevoke request the CA API
// did not accept. No navigation or re-fetch happened.
type MutationError struct {
	Op   model.Operation
	CAID string
	Err  error
}

func (e *MutationError) Error() string {
	if e.CAID == "" {
		return fmt.Sprintf("console: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("console: %s on CA %s failed: %v", e.Op, e.CAID, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// Slice names used as keys of a view's Errors map.
const (
	SliceCAs          = "cas"
	SliceCA           = "ca"
	SliceCertificates = "certificates"
	SliceCRL          = "crl"
	SliceCertificate  = "certificate"
)

// sliceErrors records the last fetch failure of each slice of a view.
type sliceErrors map[string]error

func (s sliceErrors) set(slice string, err error) {
	if err == nil {
		delete(s, slice)
		return
	}
	s[slice] = err
}

func (s sliceErrors) render() map[string]string {
	if len(s) == 0 {
		return nil
	}
	out := make(map[string]string, len(s))
	for k, v := range s {
		out[k] = v.Error()
	}
	return out
}

func orDefault(l *zap.Logger) *zap.Logger {
	if l == nil {
		return logger
	}
	return l
}
