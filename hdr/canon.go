/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package hdr

import "io"

// CanonicalHeaderKey returns the canonical form of a MIME header key:
// the first letter and any letter following a hyphen upper-cased, the
// rest lower-cased ("accept-encoding" -> "Accept-Encoding"). Keys
// assumed ASCII-only; a key containing a space or an invalid header
// field byte is returned unmodified.
func CanonicalHeaderKey(s string) string {
	upper := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !validHeaderFieldByte(c) {
			return s
		}
		if upper && 'a' <= c && c <= 'z' {
			return canonicalMIMEHeaderKey([]byte(s))
		}
		if !upper && 'A' <= c && c <= 'Z' {
			return canonicalMIMEHeaderKey([]byte(s))
		}
		upper = c == '-'
	}
	return s
}

// canonicalMIMEHeaderKey is like CanonicalHeaderKey but is allowed to
// mutate a in place before returning the string.
func canonicalMIMEHeaderKey(a []byte) string {
	for _, c := range a {
		if !validHeaderFieldByte(c) {
			return string(a)
		}
	}
	upper := true
	for i, c := range a {
		if upper && 'a' <= c && c <= 'z' {
			c -= toLower
		} else if !upper && 'A' <= c && c <= 'Z' {
			c += toLower
		}
		a[i] = c
		upper = c == '-'
	}
	// The compiler recognizes m[string(byteSlice)] as not allocating a
	// copy for this map lookup.
	if v := commonHeader[string(a)]; v != "" {
		return v
	}
	return string(a)
}

// validHeaderFieldByte reports whether b may appear in a header field
// name per RFC 7230's token grammar.
func validHeaderFieldByte(b byte) bool {
	return int(b) < len(isTokenTable) && isTokenTable[b]
}

// TrimString returns s without leading and trailing ASCII whitespace.
func TrimString(s string) string {
	for len(s) > 0 && isASCIISpace(s[0]) {
		s = s[1:]
	}
	for len(s) > 0 && isASCIISpace(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	return s
}

func isASCIISpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// stringWriter adapts an io.Writer to writeStringer, for callers (like
// a bytes.Buffer or *bufio.Writer) that don't already implement
// WriteString themselves.
type stringWriter struct {
	w io.Writer
}

func (w stringWriter) WriteString(s string) (int, error) {
	return w.w.Write([]byte(s))
}
