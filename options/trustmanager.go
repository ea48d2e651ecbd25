// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package options

import (
	"crypto/x509"
	"time"

	"github.com/pkg/errors"
)

// TrustManager validates peer chains. Returned errors are translated to TLS
// alerts by the callback bridge: x509.CertificateInvalidError with Expired
// becomes certificate_expired, x509.InsecureAlgorithmError becomes
// unsupported_certificate, everything else certificate_unknown.
type TrustManager interface {
	CheckClientTrusted(chain []*x509.Certificate, authType string) error
	CheckServerTrusted(chain []*x509.Certificate, authType string) error
}

// X509TrustManager verifies against a root pool. Now is overridable for
// deterministic tests with fixed certificates.
type X509TrustManager struct {
	Roots *x509.CertPool
	Now   func() time.Time
}

func (m *X509TrustManager) verify(chain []*x509.Certificate, usage x509.ExtKeyUsage) error {
	if len(chain) == 0 {
		return errors.New("empty certificate chain")
	}
	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}
	verifyOpts := x509.VerifyOptions{
		Roots:         m.Roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{usage},
	}
	if m.Now != nil {
		verifyOpts.CurrentTime = m.Now()
	}
	_, err := chain[0].Verify(verifyOpts)
	return errors.Wrap(err, "verifying certificate chain")
}

func (m *X509TrustManager) CheckClientTrusted(chain []*x509.Certificate, authType string) error {
	return m.verify(chain, x509.ExtKeyUsageClientAuth)
}

func (m *X509TrustManager) CheckServerTrusted(chain []*x509.Certificate, authType string) error {
	return m.verify(chain, x509.ExtKeyUsageServerAuth)
}

// InsecureTrustManager accepts any chain. Tests and explicitly opted-out
// hosts only.
type InsecureTrustManager struct{}

func (InsecureTrustManager) CheckClientTrusted(chain []*x509.Certificate, authType string) error {
	return nil
}

func (InsecureTrustManager) CheckServerTrusted(chain []*x509.Certificate, authType string) error {
	return nil
}
