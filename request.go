package resthttpd

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/restcore/resthttpd/hdr"
)

// Request is the decoded request-line plus headers of §3's data
// model. Body bytes are not buffered into it; GetPayload streams them
// from the connection via the bodyReader installed by ReadRequest.
type Request struct {
	Method     string
	URI        string
	Proto      string
	ProtoMajor int
	ProtoMinor int

	Header hdr.Header
	Host   string

	ContentLength int64
	Close         bool // client sent Connection: close

	RemoteAddr    string
	TLS           *tls.ConnectionState
	CorrelationID string

	// ClientIndex is the request's connection slot in the engine's
	// connection table, stable across every request served on the same
	// keep-alive connection. -1 for requests built off-engine (tests).
	ClientIndex int

	body *bodyReader
}

// ProtoAtLeast reports whether the request's HTTP version is at
// least major.minor.
func (r *Request) ProtoAtLeast(major, minor int) bool {
	return r.ProtoMajor > major || (r.ProtoMajor == major && r.ProtoMinor >= minor)
}

// GetPayload streams the request body, §4.E. See bodyReader for the
// framing algorithm.
func (r *Request) GetPayload(buf []byte) (n int, done bool, err error) {
	return r.body.GetPayload(buf)
}

// GetHeader is VmRESTGetHttpHeader: it returns a request header value
// and whether it was present at all (as distinct from present-but-empty).
func (r *Request) GetHeader(name string) (string, bool) {
	vs, ok := r.Header[hdr.CanonicalHeaderKey(name)]
	if !ok || len(vs) == 0 {
		return "", ok
	}
	return vs[0], true
}

// GetPeerInfo is VmRESTGetConnectionInfo: the IP address and port of
// the peer this request arrived from.
func (r *Request) GetPeerInfo() (ip string, port int, err error) {
	host, p, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "", 0, newError("Request.GetPeerInfo", KindInvalidParams, err)
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, newError("Request.GetPeerInfo", KindInvalidParams, err)
	}
	return host, n, nil
}

// ErrUnknownMethod distinguishes an unrecognized verb (501 Not
// Implemented) from any other malformed request line (400).
var ErrUnknownMethod = errors.New("resthttpd: unrecognized HTTP method")

// ErrHeaderTooLarge distinguishes an oversize header count/byte-total
// or an oversize header value (431) from any other malformed header
// line (400), per §4.E and scenario S3.
var ErrHeaderTooLarge = errors.New("resthttpd: header block exceeds configured limits")

const maxRequestLineLen = 8192

// ReadRequest parses one request head (request-line + header block)
// from br and installs the appropriate bodyReader, per §4.E. It does
// not read any body bytes itself — those are pulled lazily through
// Request.GetPayload.
func ReadRequest(br *bufio.Reader, cfg Config) (*Request, error) {
	method, uri, proto, err := readRequestLine(br, cfg.MaxURILen)
	if err != nil {
		return nil, err
	}
	major, minor, ok := parseHTTPVersion(proto)
	if !ok {
		return nil, newError("ReadRequest", KindValidationFailed, fmt.Errorf("unsupported protocol version %q", proto))
	}

	h, err := readHeaderBlock(br, cfg.MaxHeaderCount, cfg.MaxHeaderBytes, cfg.MaxHeaderValLen)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Method:        method,
		URI:           uri,
		Proto:         proto,
		ProtoMajor:    major,
		ProtoMinor:    minor,
		Header:        h,
		Host:          h.Get(hdr.Host),
		CorrelationID: uuid.New().String(),
		ClientIndex:   -1,
	}

	connHeader := strings.ToLower(strings.TrimSpace(h.Get(hdr.Connection)))
	req.Close = connHeader == "close"

	cl := h.Get(hdr.ContentLength)
	te := strings.ToLower(strings.TrimSpace(h.Get(hdr.TransferEncoding)))

	switch {
	case te == "chunked":
		req.body = newChunkedBodyReader(br, cfg)
		req.ContentLength = -1
	case cl != "":
		n, perr := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if perr != nil || n < 0 {
			return nil, newError("ReadRequest", KindValidationFailed, fmt.Errorf("bad Content-Length %q", cl))
		}
		if max := cfg.maxDataPerConnBytes(); max > 0 && n > max {
			return nil, newError("ReadRequest", KindPayloadTooLarge, fmt.Errorf("Content-Length %d exceeds configured limit %d", n, max))
		}
		req.ContentLength = n
		req.body = newFixedBodyReader(br, n, cfg.StripCRLFQuirk)
	default:
		req.body = newEmptyBodyReader()
		req.ContentLength = 0
	}

	return req, nil
}

// readRequestLine implements the request-line grammar of §4.E:
// method SP uri SP version CRLF, each token non-empty and within its
// max length.
func readRequestLine(br *bufio.Reader, maxURILen int) (method, uri, proto string, err error) {
	line, err := readCRLFLine(br, maxRequestLineLen)
	if err != nil {
		return "", "", "", err
	}
	fields := strings.Split(string(line), " ")
	if len(fields) != 3 {
		return "", "", "", newError("readRequestLine", KindValidationFailed, fmt.Errorf("malformed request line"))
	}
	method, uri, proto = fields[0], fields[1], fields[2]
	if method == "" || uri == "" || proto == "" {
		return "", "", "", newError("readRequestLine", KindValidationFailed, fmt.Errorf("empty request-line token"))
	}
	if maxURILen > 0 && len(uri) > maxURILen {
		return "", "", "", newError("readRequestLine", KindValidationFailed, fmt.Errorf("uri exceeds %d bytes", maxURILen))
	}
	if MethodIndex(method) < 0 {
		return "", "", "", newError("readRequestLine", KindValidationFailed, ErrUnknownMethod)
	}
	return method, uri, proto, nil
}

func parseHTTPVersion(v string) (major, minor int, ok bool) {
	switch v {
	case HTTP11:
		return 1, 1, true
	case HTTP10:
		return 1, 0, true
	default:
		return 0, 0, false
	}
}

// readHeaderBlock reads lines until a blank CRLF, splitting each at
// the first colon and trimming one leading space off the value, per
// §4.E. Duplicate names overwrite rather than accumulate. Exceeding
// the header count or total byte caps yields a 431-mapped error.
func readHeaderBlock(br *bufio.Reader, maxCount, maxBytes, maxValLen int) (hdr.Header, error) {
	h := make(hdr.Header)
	total := 0
	count := 0
	for {
		line, err := readCRLFLine(br, maxBytes)
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			return h, nil
		}
		total += len(line) + 2
		count++
		if (maxCount > 0 && count > maxCount) || (maxBytes > 0 && total > maxBytes) {
			return nil, newError("readHeaderBlock", KindValidationFailed, ErrHeaderTooLarge)
		}

		idx := indexByte(line, ':')
		if idx < 0 {
			return nil, newError("readHeaderBlock", KindValidationFailed, fmt.Errorf("malformed header line %q", line))
		}
		name := strings.TrimSpace(string(line[:idx]))
		value := line[idx+1:]
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}
		if maxValLen > 0 && len(value) > maxValLen {
			return nil, newError("readHeaderBlock", KindValidationFailed, ErrHeaderTooLarge)
		}
		if name == "" {
			return nil, newError("readHeaderBlock", KindValidationFailed, fmt.Errorf("empty header name"))
		}
		h.Set(name, string(value))
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
