// Package sniff implements the Content-Type sniffing fallback the
// response path falls back to when a handler sets a payload without
// an explicit Content-Type, modeled on net/http's sniff.go but pared
// down to the signature families a REST engine demo actually emits:
// HTML, XML, GIF, PNG, JPEG, PDF, JSON, and the text/octet-stream
// catchalls.
package sniff

import "bytes"

// sig is one entry of the sniffSignatures table: it reports the
// sniffed content type for data, or "" if it doesn't match.
type sig interface {
	match(data []byte, firstNonWS int) string
}

// exactSig matches when data begins with the exact byte sequence sig.
type exactSig struct {
	sig []byte
	ct  string
}

func (e *exactSig) match(data []byte, firstNonWS int) string {
	if len(data) >= len(e.sig) && bytes.Equal(data[:len(e.sig)], e.sig) {
		return e.ct
	}
	return ""
}

// textSig matches any data free of binary control bytes, per the
// WHATWG "scriptable or plaintext" fallback rule.
type textSig struct{}

func (textSig) match(data []byte, firstNonWS int) string {
	for _, b := range data[firstNonWS:] {
		switch {
		case b <= 0x08,
			b == 0x0B,
			0x0E <= b && b <= 0x1A,
			0x1C <= b && b <= 0x1F:
			return ""
		}
	}
	return "text/plain; charset=utf-8"
}

// sniffSignatures is consulted in order; the first match wins. It is
// not the full WHATWG table — just enough to classify what this
// engine's demo handlers and tests produce.
var sniffSignatures = []sig{
	&exactSig{[]byte("<!DOCTYPE HTML"), "text/html; charset=utf-8"},
	&exactSig{[]byte("<HTML"), "text/html; charset=utf-8"},
	&exactSig{[]byte("<?xml"), "text/xml; charset=utf-8"},
	&exactSig{[]byte("GIF87a"), "image/gif"},
	&exactSig{[]byte("GIF89a"), "image/gif"},
	&exactSig{[]byte("\x89PNG\r\n\x1a\n"), "image/png"},
	&exactSig{[]byte("\xFF\xD8\xFF"), "image/jpeg"},
	&exactSig{[]byte("%PDF-"), "application/pdf"},
	&exactSig{[]byte("{"), "application/json"},
	&exactSig{[]byte("["), "application/json"},
	textSig{},
}

const sniffLen = 512

// DetectContentType is the sniffing fallback invoked from
// Response.sniffContentType: it implements a reduced form of the
// algorithm described in https://mimesniff.spec.whatwg.org/, returning
// "application/octet-stream" when nothing in sniffSignatures matches.
func DetectContentType(data []byte) string {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}

	firstNonWS := 0
	for ; firstNonWS < len(data) && isWS(data[firstNonWS]); firstNonWS++ {
	}

	for _, sg := range sniffSignatures {
		if ct := sg.match(data, firstNonWS); ct != "" {
			return ct
		}
	}
	return "application/octet-stream"
}

func isWS(b byte) bool {
	switch b {
	case '\t', '\n', '\x0c', '\r', ' ':
		return true
	}
	return false
}
