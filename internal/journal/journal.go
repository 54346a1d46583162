package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blockadesystems/caconsole/internal/console"
	"github.com/blockadesystems/caconsole/internal/model"
	"github.com/blockadesystems/caconsole/internal/storage"
)

var logger *zap.Logger

func init() {
	logger = zap.L().With(zap.String("package", "journal"))
}

// API forwards every call to the wrapped console.API and records each
// mutation, successful or not, as a model.Action.
type API struct {
	next      console.API
	store     storage.Storage
	actor     string
	requestID string
	logger    *zap.Logger
	now       func() time.Time
}

var _ console.API = (*API)(nil)

// Option customises an API.
type Option func(*API)

// WithActor names who submitted the mutations.
func WithActor(actor string) Option {
	return func(a *API) { a.actor = actor }
}

// WithRequestID ties the recorded actions to a console request.
func WithRequestID(id string) Option {
	return func(a *API) { a.requestID = id }
}

// WithLogger replaces the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// Wrap returns next with its mutations journaled to store.
func Wrap(next console.API, store storage.Storage, opts ...Option) *API {
	a := &API{next: next, store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// record saves one action. A storage failure is logged, never returned.
func (a *API) record(ctx context.Context, op model.Operation, caID, serial string, err error) {
	action := &model.Action{
		ID:           uuid.NewString(),
		RequestID:    a.requestID,
		Actor:        a.actor,
		Operation:    op,
		CAID:         caID,
		SerialNumber: serial,
		Succeeded:    err == nil,
		CreatedAt:    a.now().UTC(),
	}
	if err != nil {
		action.Error = err.Error()
	}
	// Journal even when the caller's request context was cancelled mid-mutation.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if saveErr := a.store.SaveAction(saveCtx, action); saveErr != nil {
		a.logger.Error("failed to journal action",
			zap.String("operation", string(op)),
			zap.String("ca_id", caID),
			zap.String("serial_number", serial),
			zap.Error(saveErr))
		return
	}
	a.logger.Debug("action journaled", zap.String("action_id", action.ID), zap.String("operation", string(op)), zap.Bool("succeeded", action.Succeeded))
}

func (a *API) ListCAs(ctx context.Context) ([]model.CA, error) {
	return a.next.ListCAs(ctx)
}

func (a *API) CreateCA(ctx context.Context, spec model.CASpec) (*model.CA, error) {
	ca, err := a.next.CreateCA(ctx, spec)
	var caID string
	if ca != nil {
		caID = ca.SerialNumber
	}
	a.record(ctx, model.OperationCreateCA, caID, "", err)
	return ca, err
}

func (a *API) GetCA(ctx context.Context, caID string) (*model.CA, error) {
	return a.next.GetCA(ctx, caID)
}

func (a *API) ListCertificates(ctx context.Context, caID string) ([]model.Certificate, error) {
	return a.next.ListCertificates(ctx, caID)
}

func (a *API) GetCertificate(ctx context.Context, caID, certID string) (*model.Certificate, error) {
	return a.next.GetCertificate(ctx, caID, certID)
}

func (a *API) IssueCertificate(ctx context.Context, caID string, spec model.CertSpec) (*model.Certificate, error) {
	cert, err := a.next.IssueCertificate(ctx, caID, spec)
	var serial string
	if cert != nil {
		serial = cert.SerialNumber
	}
	a.record(ctx, model.OperationIssueCertificate, caID, serial, err)
	return cert, err
}

func (a *API) GetCRL(ctx context.Context, caID string) (*model.CRL, error) {
	return a.next.GetCRL(ctx, caID)
}

func (a *API) Revoke(ctx context.Context, caID, serialNumber string) error {
	err := a.next.Revoke(ctx, caID, serialNumber)
	a.record(ctx, model.OperationRevoke, caID, serialNumber, err)
	return err
}

func (a *API) Unrevoke(ctx context.Context, caID, serialNumber string) error {
	err := a.next.Unrevoke(ctx, caID, serialNumber)
	a.record(ctx, model.OperationUnrevoke, caID, serialNumber, err)
	return err
}
