package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blockadesystems/caconsole/internal/model"
)

const (
	caFolder   = "ca"
	certFolder = "cert"
	crlFolder  = "crl"

	maxErrorBody = 512 // Bytes of an error response kept in APIError
)

// ErrNotFound is matched by errors.Is for any 404 answer from the CA API.
var ErrNotFound = errors.New("client: resource not found")

// ErrInvalidID is returned, before any request is sent, for a CA, certificate
// or serial id that is empty or a dot segment.
var ErrInvalidID = errors.New("client: invalid resource id")

// APIError describes a non-2xx answer from the CA API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("client: %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("client: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrNotFound) match 404 answers.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Options configures a Client.
type Options struct {
	Timeout    time.Duration // Per request; zero means no client-side timeout
	RootCAFile string        // PEM bundle trusted for https base URLs, in addition to system roots
	HTTPClient *http.Client  // Overrides Timeout and RootCAFile when set
	Logger     *zap.Logger
}

// Client talks to the CA REST API rooted at a base URL.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
}

// New creates a Client for the CA API at baseURL (e.g. "https://ca.internal:8080/").
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("client: invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: base URL %q must be http or https", baseURL)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.L()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
		if opts.RootCAFile != "" {
			pool, err := loadRootCAs(opts.RootCAFile)
			if err != nil {
				return nil, err
			}
			httpClient.Transport = &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
			}
		}
	}

	return &Client{
		base:   u,
		http:   httpClient,
		logger: logger.With(zap.String("package", "client"), zap.String("base_url", u.String())),
	}, nil
}

func loadRootCAs(file string) (*x509.CertPool, error) {
	pemBytes, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("client: failed to read root CA file '%s': %w", file, err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pemBytes) {
		return nil, fmt.Errorf("client: no certificates found in root CA file '%s'", file)
	}
	return pool, nil
}

// CAPath returns the API path of a CA.
func CAPath(caID string) string {
	return "/" + caFolder + "/" + url.PathEscape(caID)
}

// CertsPath returns the API path of a CA's certificate collection.
func CertsPath(caID string) string {
	return CAPath(caID) + "/" + certFolder
}

// CertPath returns the API path of one certificate.
func CertPath(caID, certID string) string {
	return CertsPath(caID) + "/" + url.PathEscape(certID)
}

// CRLPath returns the API path of a CA's revocation list.
func CRLPath(caID string) string {
	return CAPath(caID) + "/" + crlFolder
}

// CRLEntryPath returns the API path of one serial number on a CA's revocation list.
func CRLEntryPath(caID, serialNumber string) string {
	return CRLPath(caID) + "/" + url.PathEscape(serialNumber)
}

// checkIDs rejects ids that would not address a single path segment.
// url.PathEscape leaves "." and ".." alone and servers resolve them.
func checkIDs(ids ...string) error {
	for _, id := range ids {
		switch id {
		case "", ".", "..":
			return fmt.Errorf("%w: %q", ErrInvalidID, id)
		}
	}
	return nil
}

// ListCAs fetches every visible CA.
func (c *Client) ListCAs(ctx context.Context) ([]model.CA, error) {
	cas := make([]model.CA, 0)
	if err := c.do(ctx, http.MethodGet, "/"+caFolder, nil, &cas); err != nil {
		return nil, err
	}
	return cas, nil
}

// CreateCA submits a generate or import request and returns the created CA.
func (c *Client) CreateCA(ctx context.Context, spec model.CASpec) (*model.CA, error) {
	var created model.CA
	if err := c.do(ctx, http.MethodPost, "/"+caFolder, spec, &created); err != nil {
		return nil, err
	}
	if created.SerialNumber == "" {
		return nil, fmt.Errorf("client: create CA: response carries no serial number")
	}
	return &created, nil
}

// GetCA fetches one CA.
func (c *Client) GetCA(ctx context.Context, caID string) (*model.CA, error) {
	if err := checkIDs(caID); err != nil {
		return nil, err
	}
	var ca model.CA
	if err := c.do(ctx, http.MethodGet, CAPath(caID), nil, &ca); err != nil {
		return nil, err
	}
	return &ca, nil
}

// ListCertificates fetches every certificate issued by a CA.
func (c *Client) ListCertificates(ctx context.Context, caID string) ([]model.Certificate, error) {
	if err := checkIDs(caID); err != nil {
		return nil, err
	}
	certs := make([]model.Certificate, 0)
	if err := c.do(ctx, http.MethodGet, CertsPath(caID), nil, &certs); err != nil {
		return nil, err
	}
	return certs, nil
}

// GetCertificate fetches one certificate of a CA.
func (c *Client) GetCertificate(ctx context.Context, caID, certID string) (*model.Certificate, error) {
	if err := checkIDs(caID, certID); err != nil {
		return nil, err
	}
	var cert model.Certificate
	if err := c.do(ctx, http.MethodGet, CertPath(caID, certID), nil, &cert); err != nil {
		return nil, err
	}
	return &cert, nil
}

// IssueCertificate asks a CA to issue a certificate and returns it.
func (c *Client) IssueCertificate(ctx context.Context, caID string, spec model.CertSpec) (*model.Certificate, error) {
	if err := checkIDs(caID); err != nil {
		return nil, err
	}
	var cert model.Certificate
	if err := c.do(ctx, http.MethodPost, CertsPath(caID), spec, &cert); err != nil {
		return nil, err
	}
	if cert.SerialNumber == "" {
		return nil, fmt.Errorf("client: issue certificate: response carries no serial number")
	}
	return &cert, nil
}

// GetCRL fetches the current revocation snapshot of a CA.
func (c *Client) GetCRL(ctx context.Context, caID string) (*model.CRL, error) {
	if err := checkIDs(caID); err != nil {
		return nil, err
	}
	var crl model.CRL
	if err := c.do(ctx, http.MethodGet, CRLPath(caID), nil, &crl); err != nil {
		return nil, err
	}
	if crl.SerialNumbers == nil {
		crl.SerialNumbers = []string{}
	}
	return &crl, nil
}

// Revoke adds a serial number to a CA's revocation list.
func (c *Client) Revoke(ctx context.Context, caID, serialNumber string) error {
	if err := checkIDs(caID, serialNumber); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, CRLPath(caID), model.RevocationRequest{SerialNumber: serialNumber}, nil)
}

// Unrevoke removes a serial number from a CA's revocation list.
func (c *Client) Unrevoke(ctx context.Context, caID, serialNumber string) error {
	if err := checkIDs(caID, serialNumber); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, CRLEntryPath(caID, serialNumber), nil, nil)
}

// do performs one JSON request. Redirects issued by the API after a POST
// are followed by the http.Client, so out receives the redirected resource.
func (c *Client) do(ctx context.Context, method, apiPath string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: failed to encode %s %s body: %w", method, apiPath, err)
		}
		body = bytes.NewReader(payload)
	}

	resp, err := c.send(ctx, method, apiPath, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: failed to decode %s %s response: %w", method, apiPath, err)
	}
	return nil
}

// send performs one request and returns the response of a 2xx answer; the
// caller closes its body. Any other answer becomes an *APIError.
func (c *Client) send(ctx context.Context, method, apiPath string, body io.Reader, accept string) (*http.Response, error) {
	target := strings.TrimSuffix(c.base.String(), "/") + apiPath

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("client: failed to build %s %s: %w", method, apiPath, err)
	}
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("CA API request failed", zap.String("method", method), zap.String("path", apiPath), zap.Error(err))
		return nil, fmt.Errorf("client: %s %s: %w", method, apiPath, err)
	}
	c.logger.Debug("CA API request", zap.String("method", method), zap.String("path", apiPath),
		zap.Int("status", resp.StatusCode), zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			Method:     method,
			Path:       apiPath,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	return resp, nil
}
