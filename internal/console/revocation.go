package console

import (
	"encoding/json"

	"github.com/blockadesystems/caconsole/internal/model"
)

// RevocationStatus is the revocation state of a certificate as last observed.
type RevocationStatus string

const (
	StatusUnknown RevocationStatus = "unknown" // No CRL snapshot applied yet
	StatusValid   RevocationStatus = "valid"
	StatusRevoked RevocationStatus = "revoked"
)

// RevocationSet is an immutable lookup built from one CRL snapshot.
// A nil *RevocationSet answers StatusUnknown for every serial.
type RevocationSet struct {
	serials map[string]struct{}
}

// NewRevocationSet copies the serial numbers of crl into a new set.
func NewRevocationSet(crl *model.CRL) *RevocationSet {
	if crl == nil {
		return nil
	}
	serials := make(map[string]struct{}, len(crl.SerialNumbers))
	for _, s := range crl.SerialNumbers {
		serials[s] = struct{}{}
	}
	return &RevocationSet{serials: serials}
}

// Contains reports whether serial is revoked in this snapshot.
func (r *RevocationSet) Contains(serial string) bool {
	if r == nil {
		return false
	}
	_, ok := r.serials[serial]
	return ok
}

// Status maps serial to valid or revoked, or unknown on a nil set.
func (r *RevocationSet) Status(serial string) RevocationStatus {
	switch {
	case r == nil:
		return StatusUnknown
	case r.Contains(serial):
		return StatusRevoked
	default:
		return StatusValid
	}
}

// Len returns the number of revoked serials.
func (r *RevocationSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.serials)
}

// Annotate returns new records for certs, each carrying its status in this snapshot.
// certs is not modified.
func (r *RevocationSet) Annotate(certs []model.Certificate) []CertificateView {
	out := make([]CertificateView, len(certs))
	for i, c := range certs {
		out[i] = CertificateView{Certificate: c, Status: r.Status(c.SerialNumber)}
	}
	return out
}

// CertificateView is a certificate together with its derived revocation status.
type CertificateView struct {
	model.Certificate
	Status RevocationStatus `json:"status"`
}

// IsRevoked reports whether the last applied CRL snapshot listed this certificate.
func (c CertificateView) IsRevoked() bool {
	return c.Status == StatusRevoked
}

// MarshalJSON adds the boolean isRevoked next to the status.
func (c CertificateView) MarshalJSON() ([]byte, error) {
	type plain CertificateView
	return json.Marshal(struct {
		plain
		IsRevoked bool `json:"isRevoked"`
	}{plain(c), c.IsRevoked()})
}
