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

// Package certificates builds a *tls.Config from a small, validated
// configuration surface, grounded on
// nabbar-golib/certificates/{config,cert}.go and its tlsversion
// sub-package, collapsed here into one package (version, cipher and
// curve enums as plain types instead of three sub-packages) since this
// engine only needs the handshake-parameter subset, not the teacher's
// full CBOR/TOML/JSON marshalling surface.
package certificates

import (
	"crypto/tls"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Version names a TLS protocol version the way operators write it in
// YAML, mapping onto crypto/tls's numeric constants.
type Version uint16

const (
	VersionUnknown Version = 0
	Version10      Version = tls.VersionTLS10
	Version11      Version = tls.VersionTLS11
	Version12      Version = tls.VersionTLS12
	Version13      Version = tls.VersionTLS13
)

func (v Version) String() string {
	switch v {
	case Version10:
		return "tls10"
	case Version11:
		return "tls11"
	case Version12:
		return "tls12"
	case Version13:
		return "tls13"
	default:
		return "unknown"
	}
}

// Parse accepts both the mnemonic form ("tls12") and the bare number
// (1.2, 1.3, ...).
func Parse(s string) Version {
	switch s {
	case "tls10", "1.0":
		return Version10
	case "tls11", "1.1":
		return Version11
	case "tls12", "1.2":
		return Version12
	case "tls13", "1.3":
		return Version13
	default:
		return VersionUnknown
	}
}

func (v Version) MarshalYAML() (interface{}, error) {
	return v.String(), nil
}

func (v *Version) UnmarshalYAML(node *yaml.Node) error {
	*v = Parse(node.Value)
	return nil
}

func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Version) UnmarshalText(b []byte) error {
	*v = Parse(string(b))
	if *v == VersionUnknown {
		return fmt.Errorf("certificates: unknown tls version %q", b)
	}
	return nil
}
