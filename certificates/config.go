/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package certificates

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	validator "github.com/go-playground/validator/v10"

	liberr "github/sabouaram/httpengine/errors"
)

// CertificatePair is one PEM certificate/key file pair (spec.md §4.10:
// "a pair of streams with a TLS session" needs at least one server
// identity to present).
type CertificatePair struct {
	CertFile string `mapstructure:"certFile" yaml:"certFile" validate:"required,file"`
	KeyFile  string `mapstructure:"keyFile" yaml:"keyFile" validate:"required,file"`
}

func (p CertificatePair) load() (tls.Certificate, error) {
	return tls.LoadX509KeyPair(p.CertFile, p.KeyFile)
}

// Config is the validated subset of nabbar-golib/certificates.Config
// this engine exercises: server identity, accepted protocol version
// range, and an optional client-certificate trust store.
type Config struct {
	CertificatePair   []CertificatePair `mapstructure:"certificatePair" yaml:"certificatePair" validate:"required,min=1,dive"`
	MinVersion        Version           `mapstructure:"versionMin" yaml:"versionMin"`
	MaxVersion        Version           `mapstructure:"versionMax" yaml:"versionMax"`
	CipherSuites      []uint16          `mapstructure:"cipherSuites" yaml:"cipherSuites"`
	ClientCAFile      string            `mapstructure:"clientCAFile" yaml:"clientCAFile" validate:"omitempty,file"`
	RequireClientCert bool              `mapstructure:"requireClientCert" yaml:"requireClientCert"`
}

func (c *Config) Validate() *liberr.Error {
	if er := validator.New().Struct(c); er != nil {
		return liberr.New(liberr.MinPkgConfig+1, liberr.KindParse, er)
	}
	return nil
}

// TLSConfig builds a *tls.Config from c, loading every certificate
// pair eagerly so handshake-time failures never surprise a live
// connection.
func (c *Config) TLSConfig() (*tls.Config, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		MinVersion:   uint16(c.MinVersion),
		MaxVersion:   uint16(c.MaxVersion),
		CipherSuites: c.CipherSuites,
	}

	for _, p := range c.CertificatePair {
		cert, err := p.load()
		if err != nil {
			return nil, fmt.Errorf("certificates: loading %s/%s: %w", p.CertFile, p.KeyFile, err)
		}
		cfg.Certificates = append(cfg.Certificates, cert)
	}

	if c.ClientCAFile != "" {
		pem, err := os.ReadFile(c.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("certificates: reading client CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("certificates: no certificates parsed from %s", c.ClientCAFile)
		}
		cfg.ClientCAs = pool
		if c.RequireClientCert {
			cfg.ClientAuth = tls.RequireAndVerifyClientCert
		} else {
			cfg.ClientAuth = tls.VerifyClientCertIfGiven
		}
	}

	return cfg, nil
}
