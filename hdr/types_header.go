/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package hdr

import (
	"strings"
	"sync"
)

const (
	toLower = 'a' - 'A'

	Accept                  = "Accept"
	AcceptCharset           = "Accept-Charset"
	AcceptEncoding          = "Accept-Encoding"
	AcceptLanguage          = "Accept-Language"
	AcceptRanges            = "Accept-Ranges"
	Authorization           = "Authorization"
	CacheControl            = "Cache-Control"
	Cc                      = "Cc"
	Connection              = "Connection"
	ContentEncoding         = "Content-Encoding"
	ContentId               = "Content-Id"
	ContentLanguage         = "Content-Language"
	ContentLength           = "Content-Length"
	ContentRange            = "Content-Range"
	ContentTransferEncoding = "Content-Transfer-Encoding"
	ContentType             = "Content-Type"
	CookieHeader            = "Cookie"
	Date                    = "Date"
	DkimSignature           = "Dkim-Signature"
	Etag                    = "Etag"
	Expires                 = "Expires"
	Expect                  = "Expect"
	From                    = "From"
	Host                    = "Host"
	IfModifiedSince         = "If-Modified-Since"
	IfNoneMatch             = "If-None-Match"
	InReplyTo               = "In-Reply-To"
	LastModified            = "Last-Modified"
	Location                = "Location"
	MessageId               = "Message-Id"
	MimeVersion             = "Mime-Version"
	Pragma                  = "Pragma"
	Range                   = "Range"
	Received                = "Received"
	Referer                 = "Referer"
	ReturnPath              = "Return-Path"
	ServerHeader            = "Server"
	SetCookieHeader         = "Set-Cookie"
	Subject                 = "Subject"
	TransferEncoding        = "Transfer-Encoding"
	To                      = "To"
	Trailer                 = "Trailer"
	UpgradeHeader           = "Upgrade"
	UserAgent               = "User-Agent"
	Via                     = "Via"
	XForwardedFor           = "X-Forwarded-For"
	XImforwards             = "X-Imforwards"
	XPoweredBy              = "X-Powered-By"
	XCorrelationID          = "X-Correlation-Id"
)

var (
	headerNewlineToSpace = strings.NewReplacer("\n", " ", "\r", " ")

	headerSorterPool = sync.Pool{
		New: func() interface{} { return new(headerSorter) },
	}

	// commonHeader interns the constants above so CanonicalHeaderKey
	// can return them without allocating a new string.
	commonHeader = make(map[string]string)

	// isTokenTable mirrors RFC 7230's token grammar
	// (https://httpwg.github.io/specs/rfc7230.html#rule.token.separators).
	isTokenTable = [127]bool{
		'0': true, '1': true, '2': true, '3': true, '4': true, '5': true, '6': true, '7': true,
		'8': true, '9': true,

		'a': true, 'b': true, 'c': true, 'd': true, 'e': true, 'f': true, 'g': true, 'h': true,
		'i': true, 'j': true, 'k': true, 'l': true, 'm': true, 'n': true, 'o': true, 'p': true,
		'q': true, 'r': true, 's': true, 't': true, 'u': true, 'v': true, 'w': true, 'x': true,
		'y': true, 'z': true,

		'A': true, 'B': true, 'C': true, 'D': true, 'E': true, 'F': true, 'G': true, 'H': true,
		'I': true, 'J': true, 'K': true, 'L': true, 'M': true, 'N': true, 'O': true, 'P': true,
		'Q': true, 'R': true, 'S': true, 'T': true, 'U': true, 'V': true, 'W': true, 'X': true,
		'Y': true, 'Z': true,

		'!':  true,
		'#':  true,
		'$':  true,
		'%':  true,
		'&':  true,
		'\'': true,
		'*':  true,
		'+':  true,
		'-':  true,
		'.':  true,
		'^':  true,
		'_':  true,
		'`':  true,
		'|':  true,
		'~':  true,
	}
)

type (
	// Header is the key-value collection of an HTTP message's header
	// block, §3/§4.
	Header map[string][]string

	// writeStringer is satisfied by anything with a net/strings-style
	// WriteString; stringWriter adapts a plain io.Writer to it.
	writeStringer interface {
		WriteString(string) (int, error)
	}

	keyValues struct {
		key    string
		values []string
	}

	// headerSorter implements sort.Interface over a []keyValues by
	// key, pooled so WriteSubset doesn't allocate one per call.
	headerSorter struct {
		kvs []keyValues
	}
)

func (s *headerSorter) Len() int           { return len(s.kvs) }
func (s *headerSorter) Swap(i, j int)      { s.kvs[i], s.kvs[j] = s.kvs[j], s.kvs[i] }
func (s *headerSorter) Less(i, j int) bool { return s.kvs[i].key < s.kvs[j].key }

func init() {
	for _, v := range []string{
		Accept, AcceptCharset, AcceptEncoding, AcceptLanguage, AcceptRanges,
		Authorization, CacheControl, Cc, Connection, ContentEncoding, ContentId,
		ContentLanguage, ContentLength, ContentRange, ContentTransferEncoding,
		ContentType, CookieHeader, Date, DkimSignature, Etag, Expires, Expect,
		From, Host, IfModifiedSince, IfNoneMatch, InReplyTo, LastModified,
		Location, MessageId, MimeVersion, Pragma, Received, Referer, ReturnPath,
		ServerHeader, SetCookieHeader, Subject, TransferEncoding, To, Trailer,
		UpgradeHeader, UserAgent, Via, XForwardedFor, XImforwards, XPoweredBy,
		XCorrelationID,
	} {
		commonHeader[v] = v
	}
}
