package model

import (
	"time"
)

// CA is a certificate authority as served by the CA API.
type CA struct {
	Self         string `json:"self,omitempty"`         // Canonical URL of the CA resource
	SerialNumber string `json:"serialNumber"`           // CA serial number, unique per deployment
	Name         string `json:"name"`                   // Subject common name
	SubjectKeyID string `json:"subjectKeyID,omitempty"` // Hex subject key identifier
	Visible      bool   `json:"visible"`                // Hidden CAs are omitted from listings
}

// CASpec is the body of a create/import CA request. It is forwarded as-is;
// the CA API owns all validation.
type CASpec struct {
	Visible        bool   `json:"visible"`
	Name           string `json:"name,omitempty"`
	PEMCertificate string `json:"pemCertificate,omitempty"` // Import only
	PEMKey         string `json:"pemKey,omitempty"`         // Import only
	PEMKeyPassword string `json:"pemKeyPassword,omitempty"` // Import only
}

// IsImport reports whether s carries existing key material.
func (s CASpec) IsImport() bool {
	return s.PEMCertificate != "" || s.PEMKey != "" || s.PEMKeyPassword != ""
}

// Certificate is a certificate issued under a CA.
type Certificate struct {
	Host           string `json:"host"`                     // Subject host name (or IP)
	Self           string `json:"self,omitempty"`           // Canonical URL of the certificate resource
	SerialNumber   string `json:"serialNumber"`             // Unique within the owning CA
	SubjectKeyID   string `json:"subjectKeyID,omitempty"`   // Hex subject key identifier
	AuthorityKeyID string `json:"authorityKeyID,omitempty"` // Matches the issuing CA's SubjectKeyID
}

// CertSpec is the body of an issue certificate request.
type CertSpec struct {
	Host string `json:"host"`
}

// CRL is a snapshot of the serial numbers a CA currently revokes.
type CRL struct {
	Self          string   `json:"self,omitempty"`
	SerialNumbers []string `json:"serialNumbers"`
}

// RevocationRequest is the body of a revoke request.
type RevocationRequest struct {
	SerialNumber string `json:"serialNumber"`
}

// Operation names a console mutation recorded in the journal.
type Operation string

const (
	OperationCreateCA         Operation = "create_ca"
	OperationIssueCertificate Operation = "issue_certificate"
	OperationRevoke           Operation = "revoke"
	OperationUnrevoke         Operation = "unrevoke"
)

// Action is one journal entry: a mutation the console submitted and how the CA API answered.
type Action struct {
	ID           string    `json:"id" db:"id"`                          // UUID
	RequestID    string    `json:"requestID,omitempty" db:"request_id"` // Console request that triggered it, if any
	Actor        string    `json:"actor,omitempty" db:"actor"`          // Token subject or CLI user
	Operation    Operation `json:"operation" db:"operation"`
	CAID         string    `json:"caID,omitempty" db:"ca_id"`
	SerialNumber string    `json:"serialNumber,omitempty" db:"serial_number"` // Target serial, or the serial the server returned
	Succeeded    bool      `json:"succeeded" db:"succeeded"`
	Error        string    `json:"error,omitempty" db:"error"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
