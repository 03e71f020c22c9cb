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

package fastcgi

import (
	"bytes"
	"encoding/binary"
	"sort"
	"strconv"
	"strings"

	"github/sabouaram/httpengine/httpparser"
	"github/sabouaram/httpengine/vr"
)

// encodeLen is FastCGI's variable-length length prefix: one byte when
// n < 128, else a 4-byte big-endian value with the high bit set.
func encodeLen(n int) []byte {
	if n < 128 {
		return []byte{byte(n)}
	}
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(n)|0x80000000)
	return b
}

// encodeParams serializes a CGI/1.1 environment as FCGI_NameValuePair11
// (or 41/14/44, picked per-field by encodeLen) concatenated entries,
// sorted by key so PARAMS records are reproducible across runs.
func encodeParams(env map[string]string) []byte {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		v := env[k]
		buf.Write(encodeLen(len(k)))
		buf.Write(encodeLen(len(v)))
		buf.WriteString(k)
		buf.WriteString(v)
	}
	return buf.Bytes()
}

func versionString(v httpparser.Version) string {
	switch v {
	case httpparser.Version10:
		return "HTTP/1.0"
	case httpparser.Version11:
		return "HTTP/1.1"
	default:
		return "HTTP/1.1"
	}
}

// BuildParams derives the CGI/1.1 environment for req (spec.md §4.11:
// "PARAMS records carrying CGI/1.1 variables derived from request").
func BuildParams(req *httpparser.Request, phys vr.Physical, remoteAddr, serverAddr, serverPort string) map[string]string {
	uri := req.URI
	path, query := uri, ""
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		path, query = uri[:i], uri[i+1:]
	}

	env := map[string]string{
		"GATEWAY_INTERFACE": "CGI/1.1",
		"SERVER_PROTOCOL":   versionString(req.Version),
		"REQUEST_METHOD":    req.MethodRaw,
		"SCRIPT_FILENAME":   phys.Path,
		"SCRIPT_NAME":       phys.RelPath,
		"PATH_INFO":         phys.PathInfo,
		"DOCUMENT_ROOT":     phys.DocRoot,
		"REQUEST_URI":       uri,
		"PATH_TRANSLATED":   path,
		"QUERY_STRING":      query,
		"SERVER_SOFTWARE":   "httpengine",
		"SERVER_NAME":       req.Host,
		"REMOTE_ADDR":       remoteAddr,
		"SERVER_ADDR":       serverAddr,
		"SERVER_PORT":       serverPort,
	}

	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, "Content-Type") {
			env["CONTENT_TYPE"] = h.Value
			continue
		}
		if strings.EqualFold(h.Name, "Content-Length") {
			env["CONTENT_LENGTH"] = h.Value
			continue
		}
		key := "HTTP_" + strings.ToUpper(strings.ReplaceAll(h.Name, "-", "_"))
		env[key] = h.Value
	}
	if _, ok := env["CONTENT_LENGTH"]; !ok {
		env["CONTENT_LENGTH"] = strconv.Itoa(0)
	}
	return env
}
