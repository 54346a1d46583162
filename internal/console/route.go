package console

import (
	"net/url"
	"strings"
)

// RouteKind identifies a page of the console.
type RouteKind int

const (
	RouteCAList RouteKind = iota // Default and fallback
	RouteAbout
	RouteContact
	RouteImportCA
	RouteCADetail
	RouteCertDetail
)

var routeKindNames = map[RouteKind]string{
	RouteCAList:     "ca_list",
	RouteAbout:      "about",
	RouteContact:    "contact",
	RouteImportCA:   "import_ca",
	RouteCADetail:   "ca_detail",
	RouteCertDetail: "cert_detail",
}

func (k RouteKind) String() string {
	if s, ok := routeKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Fixed console paths.
const (
	PathAbout    = "/about"
	PathContact  = "/contact"
	PathCAList   = "/ca"
	PathImportCA = "/importca"
)

// PathCA returns the detail path of a CA.
func PathCA(caID string) string {
	return PathCAList + "/" + url.PathEscape(caID)
}

// PathCert returns the detail path of a certificate.
func PathCert(caID, certID string) string {
	return PathCA(caID) + "/cert/" + url.PathEscape(certID)
}

// Route is a parsed console path.
type Route struct {
	Kind   RouteKind
	CAID   string
	CertID string
}

// ParseRoute maps a path to a Route. Anything unrecognised is the CA listing.
func ParseRoute(p string) Route {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimSuffix(p, "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, part := range parts {
		unescaped, err := url.PathUnescape(part)
		if err != nil {
			return Route{Kind: RouteCAList}
		}
		parts[i] = unescaped
	}

	switch {
	case len(parts) == 1 && parts[0] == "about":
		return Route{Kind: RouteAbout}
	case len(parts) == 1 && parts[0] == "contact":
		return Route{Kind: RouteContact}
	case len(parts) == 1 && parts[0] == "importca":
		return Route{Kind: RouteImportCA}
	case len(parts) == 2 && parts[0] == "ca" && parts[1] != "":
		return Route{Kind: RouteCADetail, CAID: parts[1]}
	case len(parts) == 4 && parts[0] == "ca" && parts[1] != "" && parts[2] == "cert" && parts[3] != "":
		return Route{Kind: RouteCertDetail, CAID: parts[1], CertID: parts[3]}
	}
	return Route{Kind: RouteCAList}
}

// Path renders the route back to its canonical path.
func (r Route) Path() string {
	switch r.Kind {
	case RouteAbout:
		return PathAbout
	case RouteContact:
		return PathContact
	case RouteImportCA:
		return PathImportCA
	case RouteCADetail:
		return PathCA(r.CAID)
	case RouteCertDetail:
		return PathCert(r.CAID, r.CertID)
	}
	return PathCAList
}
