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

package tlsfilter

import "errors"

const (
	recordTypeHandshake      = 22
	handshakeTypeClientHello = 1
	extServerName            = 0
	serverNameTypeHost       = 0
)

var (
	// ErrNotClientHello is returned once the sniffed bytes are
	// provably not a TLS ClientHello (wrong record type or handshake
	// type), per spec's "records of type 22, handshake type 1".
	ErrNotClientHello = errors.New("tlsfilter: not a tls client hello")
	errMalformedHello = errors.New("tlsfilter: malformed client hello")
)

// ClientHello is the subset of a TLS ClientHello the preamble sniffer
// extracts before any byte is handed to the TLS engine: the record
// layer's legacy protocol version and the SNI host name, if present.
type ClientHello struct {
	ServerName string
	Version    uint16
}

// HelloSniffer previews the leading bytes of a new connection to
// extract SNI before a certificate is chosen, without consuming or
// copying the underlying stream (spec.md §4.10: "it only previews,
// then forwards untouched"). Feed the full byte sequence observed so
// far on every call; HelloSniffer re-scans from the start, since the
// record/handshake boundaries aren't known until enough bytes arrive.
type HelloSniffer struct {
	handshake []byte
	version   uint16
	want      int
}

func NewHelloSniffer() *HelloSniffer {
	return &HelloSniffer{want: -1}
}

// Feed previews buf, the complete byte sequence seen on the
// connection so far. It returns ok=true once a complete ClientHello
// has been parsed; ok=false means more bytes are needed (not an
// error). err is non-nil only once the data is provably not a valid
// TLS ClientHello.
func (s *HelloSniffer) Feed(buf []byte) (hello *ClientHello, ok bool, err error) {
	s.handshake = s.handshake[:0]
	s.want = -1

	off := 0
	for {
		if len(buf)-off < 5 {
			return nil, false, nil
		}
		if buf[off] != recordTypeHandshake {
			return nil, false, ErrNotClientHello
		}
		s.version = uint16(buf[off+1])<<8 | uint16(buf[off+2])
		recLen := int(buf[off+3])<<8 | int(buf[off+4])
		if len(buf)-off < 5+recLen {
			return nil, false, nil
		}
		s.handshake = append(s.handshake, buf[off+5:off+5+recLen]...)
		off += 5 + recLen

		if s.want < 0 && len(s.handshake) >= 4 {
			if s.handshake[0] != handshakeTypeClientHello {
				return nil, false, ErrNotClientHello
			}
			s.want = 4 + (int(s.handshake[1])<<16 | int(s.handshake[2])<<8 | int(s.handshake[3]))
		}
		if s.want >= 0 && len(s.handshake) >= s.want {
			return s.parse()
		}
		// handshake message spans another record; loop for more
	}
}

func (s *HelloSniffer) parse() (*ClientHello, bool, error) {
	b := s.handshake[:s.want]
	p := 4 // handshake header: msg type(1) + length(3)

	if len(b) < p+2+32+1 {
		return nil, false, errMalformedHello
	}
	p += 2  // legacy_version
	p += 32 // random

	sidLen := int(b[p])
	p++
	p += sidLen
	if len(b) < p+2 {
		return nil, false, errMalformedHello
	}

	csLen := int(b[p])<<8 | int(b[p+1])
	p += 2 + csLen
	if len(b) < p+1 {
		return nil, false, errMalformedHello
	}

	cmLen := int(b[p])
	p++
	p += cmLen
	if len(b) < p+2 {
		return &ClientHello{Version: s.version}, true, nil // no extensions, no SNI
	}

	extLen := int(b[p])<<8 | int(b[p+1])
	p += 2
	end := p + extLen
	if end > len(b) {
		return nil, false, errMalformedHello
	}

	for p+4 <= end {
		extType := int(b[p])<<8 | int(b[p+1])
		extDataLen := int(b[p+2])<<8 | int(b[p+3])
		p += 4
		if p+extDataLen > end {
			return nil, false, errMalformedHello
		}
		if extType == extServerName {
			if name, ok := parseServerName(b[p : p+extDataLen]); ok {
				return &ClientHello{ServerName: name, Version: s.version}, true, nil
			}
		}
		p += extDataLen
	}

	return &ClientHello{Version: s.version}, true, nil
}

// parseServerName reads the server_name extension body down to the
// first host_name (name_type 0) entry, per spec's "up to the first
// valid IDN-encodable hostname is reported".
func parseServerName(b []byte) (string, bool) {
	if len(b) < 2 {
		return "", false
	}
	listLen := int(b[0])<<8 | int(b[1])
	p := 2
	end := p + listLen
	if end > len(b) {
		end = len(b)
	}
	for p+3 <= end {
		nameType := b[p]
		nameLen := int(b[p+1])<<8 | int(b[p+2])
		p += 3
		if p+nameLen > end {
			return "", false
		}
		if nameType == serverNameTypeHost {
			return string(b[p : p+nameLen]), true
		}
		p += nameLen
	}
	return "", false
}
