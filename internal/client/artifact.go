package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"go.uber.org/zap"
)

// ArtifactKind is the content of a downloadable file.
type ArtifactKind string

const (
	ArtifactCertificate ArtifactKind = "certificate"
	ArtifactCRL         ArtifactKind = "crl"
)

// Format is the encoding of a downloadable file.
type Format string

const (
	FormatPEM Format = "pem"
	FormatDER Format = "der"
)

// Artifact names a file the CA API serves next to a CA or certificate
// resource, e.g. /ca/1001-crl.pem or /ca/1001/cert/2001-certificate.cer.
// CertID is empty for CA artifacts.
type Artifact struct {
	CAID   string
	CertID string
	Kind   ArtifactKind
	Format Format
}

// CACertificate returns the certificate artifact of a CA.
func CACertificate(caID string, f Format) Artifact {
	return Artifact{CAID: caID, Kind: ArtifactCertificate, Format: f}
}

// CACRL returns the revocation list artifact of a CA.
func CACRL(caID string, f Format) Artifact {
	return Artifact{CAID: caID, Kind: ArtifactCRL, Format: f}
}

// Certificate returns the artifact of an issued certificate.
func Certificate(caID, certID string, f Format) Artifact {
	return Artifact{CAID: caID, CertID: certID, Kind: ArtifactCertificate, Format: f}
}

// Path returns the API path of the artifact.
func (a Artifact) Path() string {
	base := CAPath(a.CAID)
	if a.CertID != "" {
		base = CertPath(a.CAID, a.CertID)
	}
	return base + "-" + string(a.Kind) + a.extension()
}

// FileName is the last segment of Path.
func (a Artifact) FileName() string {
	id := a.CAID
	if a.CertID != "" {
		id = a.CertID
	}
	return url.PathEscape(id) + "-" + string(a.Kind) + a.extension()
}

func (a Artifact) extension() string {
	if a.Format != FormatDER {
		return ".pem"
	}
	if a.Kind == ArtifactCRL {
		return ".crl"
	}
	return ".cer"
}

func (a Artifact) contentType() string {
	switch {
	case a.Format == FormatPEM:
		return "application/x-pem-file"
	case a.Kind == ArtifactCRL:
		return "application/pkix-crl"
	default:
		return "application/pkix-cert"
	}
}

// Validate checks the ids, kind and format before a request is built.
func (a Artifact) Validate() error {
	ids := []string{a.CAID}
	if a.CertID != "" {
		ids = append(ids, a.CertID)
	}
	if err := checkIDs(ids...); err != nil {
		return err
	}
	switch a.Kind {
	case ArtifactCertificate:
	case ArtifactCRL:
		if a.CertID != "" {
			return fmt.Errorf("client: certificates carry no %s artifact", a.Kind)
		}
	default:
		return fmt.Errorf("client: unknown artifact kind %q", a.Kind)
	}
	if a.Format != FormatPEM && a.Format != FormatDER {
		return fmt.Errorf("client: unknown artifact format %q", a.Format)
	}
	return nil
}

// Download streams the artifact into w and returns the number of bytes copied.
// Nothing is written to w unless the CA API answers 2xx.
func (c *Client) Download(ctx context.Context, a Artifact, w io.Writer) (int64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	apiPath := a.Path()
	resp, err := c.send(ctx, http.MethodGet, apiPath, nil, a.contentType())
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("client: failed to read %s: %w", apiPath, err)
	}
	c.logger.Debug("artifact downloaded", zap.String("path", apiPath), zap.Int64("bytes", n))
	return n, nil
}

// DownloadFile writes the artifact to file. A failed download leaves no
// file behind.
func (c *Client) DownloadFile(ctx context.Context, a Artifact, file string) (int64, error) {
	out, err := os.Create(file)
	if err != nil {
		return 0, fmt.Errorf("client: failed to create '%s': %w", file, err)
	}
	n, err := c.Download(ctx, a, out)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("client: failed to write '%s': %w", file, closeErr)
	}
	if err != nil {
		_ = os.Remove(file)
		return 0, err
	}
	return n, nil
}
