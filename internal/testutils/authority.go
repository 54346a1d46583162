package testutils

import (
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/blockadesystems/caconsole/internal/model"
)

// FakeAuthority is an in-memory CA REST API served over httptest. Creating
// POSTs answer with a 302 to the new resource, hidden CAs are left out of
// listings and unrevoking a serial that is not revoked succeeds. Artifact
// files carry placeholder DER bytes naming their resource.
type FakeAuthority struct {
	URL string

	mu         sync.Mutex
	cas        map[string]*fakeCA
	caOrder    []string
	nextSerial int64
	failures   map[string]int
	requests   []string
	hooks      map[string]func()
}

type fakeCA struct {
	ca        model.CA
	certs     map[string]model.Certificate
	certOrder []string
	revoked   map[string]bool
}

// NewFakeAuthority starts a fake CA API that is shut down when the test ends.
func NewFakeAuthority(t *testing.T) *FakeAuthority {
	t.Helper()

	f := &FakeAuthority{
		cas:        make(map[string]*fakeCA),
		nextSerial: 5000,
		failures:   make(map[string]int),
		hooks:      make(map[string]func()),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(f.intercept)

	e.GET("/ca", f.listCAs)
	e.POST("/ca", f.createCA)
	e.GET("/ca/:caId", f.getCA)
	e.GET("/ca/:caId/cert", f.listCerts)
	e.POST("/ca/:caId/cert", f.issueCert)
	e.GET("/ca/:caId/cert/:certId", f.getCert)
	e.GET("/ca/:caId/crl", f.getCRL)
	e.POST("/ca/:caId/crl", f.revoke)
	e.DELETE("/ca/:caId/crl/:serial", f.unrevoke)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	f.URL = srv.URL
	return f
}

// intercept records each request, runs hooks and injects configured failures.
func (f *FakeAuthority) intercept(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Method + " " + c.Request().URL.Path
		f.mu.Lock()
		f.requests = append(f.requests, key)
		status, failing := f.failures[key]
		hook := f.hooks[key]
		f.mu.Unlock()

		if hook != nil {
			hook()
		}
		if failing {
			return echo.NewHTTPError(status, "injected failure")
		}
		return next(c)
	}
}

// AddCA seeds a CA with a fixed serial number.
func (f *FakeAuthority) AddCA(serial, name string, visible bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCALocked(serial, name, visible)
}

func (f *FakeAuthority) addCALocked(serial, name string, visible bool) {
	f.cas[serial] = &fakeCA{
		ca: model.CA{
			Self:         path.Join("/ca", serial),
			SerialNumber: serial,
			Name:         name,
			SubjectKeyID: "ski-" + serial,
			Visible:      visible,
		},
		certs:   make(map[string]model.Certificate),
		revoked: make(map[string]bool),
	}
	f.caOrder = append(f.caOrder, serial)
}

// AddCert seeds a certificate with a fixed serial number under caSerial.
func (f *FakeAuthority) AddCert(caSerial, serial, host string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCertLocked(f.cas[caSerial], serial, host)
}

func (f *FakeAuthority) addCertLocked(ca *fakeCA, serial, host string) model.Certificate {
	cert := model.Certificate{
		Host:           host,
		Self:           path.Join(ca.ca.Self, "cert", serial),
		SerialNumber:   serial,
		SubjectKeyID:   "ski-" + serial,
		AuthorityKeyID: ca.ca.SubjectKeyID,
	}
	ca.certs[serial] = cert
	ca.certOrder = append(ca.certOrder, serial)
	return cert
}

// SetRevoked seeds the CRL of caSerial.
func (f *FakeAuthority) SetRevoked(caSerial, serial string, revoked bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if revoked {
		f.cas[caSerial].revoked[serial] = true
	} else {
		delete(f.cas[caSerial].revoked, serial)
	}
}

// SetNextSerial sets the serial number the next created CA or certificate gets.
func (f *FakeAuthority) SetNextSerial(n int64) {
	f.mu.Lock()
	f.nextSerial = n
	f.mu.Unlock()
}

// Fail makes every request matching method and path answer with status.
func (f *FakeAuthority) Fail(method, path string, status int) {
	f.mu.Lock()
	f.failures[method+" "+path] = status
	f.mu.Unlock()
}

// Heal removes an injected failure.
func (f *FakeAuthority) Heal(method, path string) {
	f.mu.Lock()
	delete(f.failures, method+" "+path)
	f.mu.Unlock()
}

// OnRequest runs hook before a request matching method and path is handled.
func (f *FakeAuthority) OnRequest(method, path string, hook func()) {
	f.mu.Lock()
	f.hooks[method+" "+path] = hook
	f.mu.Unlock()
}

// Requests returns "METHOD path" for every request received so far.
func (f *FakeAuthority) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	copy(out, f.requests)
	return out
}

// Revoked returns the sorted CRL of caSerial.
func (f *FakeAuthority) Revoked(caSerial string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cas[caSerial].crl()
}

func (ca *fakeCA) crl() []string {
	out := make([]string, 0, len(ca.revoked))
	for s := range ca.revoked {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (f *FakeAuthority) allocSerial() string {
	s := strconv.FormatInt(f.nextSerial, 10)
	f.nextSerial++
	return s
}

// lookupCA resolves a CA serial; callers hold f.mu.
func (f *FakeAuthority) lookupCA(id string) (*fakeCA, error) {
	ca, ok := f.cas[id]
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "CA not found")
	}
	return ca, nil
}

func (f *FakeAuthority) listCAs(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.CA, 0, len(f.caOrder))
	for _, s := range f.caOrder {
		if ca := f.cas[s]; ca.ca.Visible {
			out = append(out, ca.ca)
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (f *FakeAuthority) createCA(c echo.Context) error {
	var spec model.CASpec
	if err := c.Bind(&spec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid CA request")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	name := spec.Name
	if spec.IsImport() {
		if spec.PEMCertificate == "" || spec.PEMKey == "" {
			return echo.NewHTTPError(http.StatusInternalServerError, "import needs a certificate and a key")
		}
		name = "imported"
	}
	serial := f.allocSerial()
	f.addCALocked(serial, name, spec.Visible)
	return c.Redirect(http.StatusFound, f.cas[serial].ca.Self)
}

func (f *FakeAuthority) getCA(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, file, isArtifact := splitArtifact(c.Param("caId"))
	ca, err := f.lookupCA(id)
	if err != nil {
		return err
	}
	if !isArtifact {
		return c.JSON(http.StatusOK, ca.ca)
	}
	switch file.kind {
	case "certificate":
		return file.serve(c, "certificate "+ca.ca.SerialNumber)
	default:
		return file.serve(c, "crl "+ca.ca.SerialNumber+": "+strings.Join(ca.crl(), ","))
	}
}

func (f *FakeAuthority) listCerts(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ca, err := f.lookupCA(c.Param("caId"))
	if err != nil {
		return err
	}
	out := make([]model.Certificate, 0, len(ca.certOrder))
	for _, s := range ca.certOrder {
		out = append(out, ca.certs[s])
	}
	return c.JSON(http.StatusOK, out)
}

func (f *FakeAuthority) issueCert(c echo.Context) error {
	var spec model.CertSpec
	if err := c.Bind(&spec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid certificate request")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ca, err := f.lookupCA(c.Param("caId"))
	if err != nil {
		return err
	}
	cert := f.addCertLocked(ca, f.allocSerial(), spec.Host)
	return c.Redirect(http.StatusFound, cert.Self)
}

func (f *FakeAuthority) getCert(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ca, err := f.lookupCA(c.Param("caId"))
	if err != nil {
		return err
	}
	id, file, isArtifact := splitArtifact(c.Param("certId"))
	cert, ok := ca.certs[id]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "certificate not found")
	}
	if !isArtifact {
		return c.JSON(http.StatusOK, cert)
	}
	if file.kind != "certificate" {
		return echo.NewHTTPError(http.StatusNotFound, "certificates carry no "+file.kind)
	}
	return file.serve(c, "certificate "+cert.SerialNumber)
}

func (f *FakeAuthority) getCRL(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ca, err := f.lookupCA(c.Param("caId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.CRL{Self: path.Join(ca.ca.Self, "crl"), SerialNumbers: ca.crl()})
}

func (f *FakeAuthority) revoke(c echo.Context) error {
	var req model.RevocationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid revocation request")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ca, err := f.lookupCA(c.Param("caId"))
	if err != nil {
		return err
	}
	if _, ok := ca.certs[req.SerialNumber]; !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "certificate "+req.SerialNumber+" does not belong to CA "+ca.ca.SerialNumber)
	}
	ca.revoked[req.SerialNumber] = true
	return c.Redirect(http.StatusFound, path.Join(ca.ca.Self, "crl"))
}

func (f *FakeAuthority) unrevoke(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ca, err := f.lookupCA(c.Param("caId"))
	if err != nil {
		return err
	}
	serial := c.Param("serial")
	if _, ok := ca.certs[serial]; !ok {
		return echo.NewHTTPError(http.StatusNotFound, "certificate not found")
	}
	delete(ca.revoked, serial)
	return c.NoContent(http.StatusNoContent)
}

// artifactFile is one of the file suffixes the CA API serves next to a resource.
type artifactFile struct {
	suffix      string
	kind        string
	pemType     string
	contentType string
	der         bool
}

var artifactFiles = []artifactFile{
	{"-certificate.pem", "certificate", "CERTIFICATE", "application/x-pem-file", false},
	{"-certificate.cer", "certificate", "CERTIFICATE", "application/pkix-cert", true},
	{"-crl.pem", "crl", "X509 CRL", "application/x-pem-file", false},
	{"-crl.crl", "crl", "X509 CRL", "application/pkix-crl", true},
}

// splitArtifact separates "1001-crl.pem" into the resource id and its file.
func splitArtifact(param string) (string, artifactFile, bool) {
	for _, file := range artifactFiles {
		if id, ok := strings.CutSuffix(param, file.suffix); ok && id != "" {
			return id, file, true
		}
	}
	return param, artifactFile{}, false
}

func (a artifactFile) serve(c echo.Context, content string) error {
	der := []byte(content)
	if a.der {
		return c.Blob(http.StatusOK, a.contentType, der)
	}
	return c.Blob(http.StatusOK, a.contentType, pem.EncodeToMemory(&pem.Block{Type: a.pemType, Bytes: der}))
}
