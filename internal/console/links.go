package console

import "github.com/blockadesystems/caconsole/internal/client"

// ArtifactLinks are the CA API paths of the files served next to a CA or
// certificate. CRL links are set for CAs only.
type ArtifactLinks struct {
	CertificatePEM string `json:"certificatePem"`
	CertificateDER string `json:"certificateDer"`
	CRLPEM         string `json:"crlPem,omitempty"`
	CRLDER         string `json:"crlDer,omitempty"`
}

func caLinks(caID string) ArtifactLinks {
	return ArtifactLinks{
		CertificatePEM: client.CACertificate(caID, client.FormatPEM).Path(),
		CertificateDER: client.CACertificate(caID, client.FormatDER).Path(),
		CRLPEM:         client.CACRL(caID, client.FormatPEM).Path(),
		CRLDER:         client.CACRL(caID, client.FormatDER).Path(),
	}
}

func certLinks(caID, certID string) ArtifactLinks {
	return ArtifactLinks{
		CertificatePEM: client.Certificate(caID, certID, client.FormatPEM).Path(),
		CertificateDER: client.Certificate(caID, certID, client.FormatDER).Path(),
	}
}
