package resthttpd

import (
	"bufio"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/restcore/resthttpd/hdr"
)

func newBufReader(r io.Reader, size int) *bufio.Reader {
	if size <= 0 {
		size = 4096
	}
	return bufio.NewReaderSize(r, size)
}

func newBufWriter(w io.Writer) *bufio.Writer {
	return bufio.NewWriterSize(w, 4096)
}

// serve drives a connection through the state machine of §4.H. It is
// called once per NEW_CONNECTION event and loops internally across
// keep-alive requests on the same connection — there is no handoff to
// another worker mid-connection (§5's "worker stays pinned" rule).
// Grounded line-for-line on the teacher's conn.go c.serve(ctx): TLS
// handshake inline at entry, then a `for { read head; dispatch; write;
// decide keep-alive }` loop, with the goroutine-per-accept model
// replaced by the fixed pool that called this method.
func (c *connState) serve() {
	defer c.closeFinal()

	if tlsConn, ok := c.netConn.(*tls.Conn); ok {
		c.netConn.SetDeadline(time.Now().Add(c.cfg.connTimeout()))
		if err := tlsConn.Handshake(); err != nil {
			c.eng.logf("tls handshake from %s: %v", c.peerAddr, err)
			return
		}
		st := tlsConn.ConnectionState()
		c.tlsState = &st
	}

	for {
		c.setPhase(PhaseReadingHead)
		c.netConn.SetReadDeadline(time.Now().Add(c.cfg.connTimeout()))

		req, err := ReadRequest(c.br, c.cfg)
		if err != nil {
			c.handleReadError(err)
			return
		}
		req.RemoteAddr = c.peerAddr
		req.TLS = c.tlsState
		req.CorrelationID = c.correlationID
		req.ClientIndex = c.clientIndex

		c.netConn.SetWriteDeadline(time.Now().Add(c.cfg.connTimeout()))

		c.setPhase(PhaseDispatching)
		resp := newResponse(req, c.bw)
		resp.Header.Set(hdr.XCorrelationID, c.correlationID)
		abort := c.dispatch(req, resp)

		c.setPhase(PhaseWriting)
		if abort {
			// The handler failed after its response body had begun
			// streaming. The framing can't be repaired mid-stream, so
			// the close itself is what tells the client the response is
			// truncated — no terminating chunk.
			return
		}
		// A handler may return without a complete response on the wire:
		// either it never called SetPayload (send an empty fixed-length
		// body so the client isn't left hanging) or it streamed chunks
		// but never the terminating one (emit it).
		if err := resp.finish(); err != nil {
			return
		}

		// A handler (or the 404/405/500 short-circuit above) may not
		// have consumed the request body; whatever it left behind
		// would otherwise be parsed as the next request's request-line
		// on this same connection. Drain it now, bounded, or force a
		// close — grounded on the teacher's finishRequest -> body.Close
		// pairing (conn.go, response_server.go).
		if drained, derr := req.body.Close(); derr != nil || !drained {
			resp.Header.Set(hdr.Connection, "close")
		}

		if c.shouldClose(req, resp) {
			c.setPhase(PhaseClosing)
			return
		}

		c.setPhase(PhaseIdle)
		if c.eng.isShuttingDown() {
			return
		}
	}
}

// dispatch looks the request up in the registry and invokes its
// handler, translating registry/parse outcomes into the failure
// responses of §4.H and §7's error taxonomy. A handler's own error
// return is treated the same way a parse failure is: the dispatcher,
// not the handler, is responsible for ensuring some response is sent.
// It reports abort=true when the handler failed after its response
// body had already begun streaming — that response cannot be repaired
// or completed, only cut off by closing the connection.
func (c *connState) dispatch(req *Request, resp *Response) (abort bool) {
	h, registered, allowed := c.eng.registry.LookupMethod(req.URI, req.Method)
	switch {
	case !registered:
		c.eng.metricsSink.RequestFailed(StatusNotFound)
		c.writeFailure(req, resp, StatusNotFound)
		return false
	case !allowed:
		c.eng.metricsSink.RequestFailed(StatusMethodNotAllowed)
		c.writeFailure(req, resp, StatusMethodNotAllowed)
		return false
	}

	handler, ok := h.(Handler)
	if !ok || handler == nil {
		c.eng.metricsSink.RequestFailed(StatusInternalServerError)
		c.writeFailure(req, resp, StatusInternalServerError)
		return false
	}

	ep := c.eng.registry.Lookup(req.URI)
	var userData interface{}
	if ep != nil {
		userData = ep.UserData
	}

	if err := handler(req, resp, userData); err != nil {
		c.eng.logf("handler error [%s] %s %s: %v", req.CorrelationID, req.Method, req.URI, err)
		if resp.headerSent && !resp.completed {
			return true
		}
		if !resp.headerSent {
			kind, _ := KindOf(err)
			code := kind.HTTPStatus()
			if code == 0 {
				code = StatusInternalServerError
			}
			c.eng.metricsSink.RequestFailed(code)
			c.writeFailure(req, resp, code)
		}
		return false
	}
	c.eng.metricsSink.RequestOK()
	return false
}

// writeFailure sends a failure response whose Connection header
// agrees with the keep-alive decision shouldClose will make right
// after dispatch returns, closing scenario S6: a 404/405/500 must not
// claim to keep a connection alive that the caller is about to tear
// down, nor vice versa.
func (c *connState) writeFailure(req *Request, resp *Response, code int) {
	closeConn := c.shouldClose(req, resp)
	writeFailureResponse(c.bw, code, closeConn)
	if closeConn {
		resp.Header.Set(hdr.Connection, "close")
	}
	resp.headerSent = true
	resp.completed = true
}

// handleReadError classifies a ReadRequest failure and, where the
// connection is still writable, sends the matching failure response
// before the caller closes — VmRESTSendFailureResponse, §4.H.
func (c *connState) handleReadError(err error) {
	if isCommonNetReadError(err) {
		return
	}
	code := StatusBadRequest
	switch {
	case errors.Is(err, ErrUnknownMethod):
		code = StatusNotImplemented
	case errors.Is(err, ErrHeaderTooLarge):
		code = StatusRequestHeaderTooLarge
	default:
		if kind, ok := KindOf(err); ok {
			if kind == KindConnectionClosed || kind == KindConnectionReset {
				return
			}
			if s := kind.HTTPStatus(); s != 0 {
				code = s
			}
		}
	}
	c.eng.metricsSink.RequestFailed(code)
	// The caller always closes the connection after a read error (the
	// request may not even be fully parsed), so the header must say so.
	writeFailureResponse(c.bw, code, true)
}

func isCommonNetReadError(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// shouldClose realizes VmRESTEntertainPersistentConn: HTTP/1.1 stays
// open unless either side sent Connection: close; HTTP/1.0 closes
// unless the request sent Connection: keep-alive. Grounded on the
// teacher's shouldReuseConnection, reduced to these two rules — the
// teacher's extra net/http-specific bookkeeping (Expect: 100-continue,
// h2c upgrade) doesn't apply to this engine and is dropped.
func (c *connState) shouldClose(req *Request, resp *Response) bool {
	if req.Close {
		return true
	}
	respConn := strings.ToLower(strings.TrimSpace(resp.Header.Get(hdr.Connection)))
	if respConn == "close" {
		return true
	}
	if req.ProtoAtLeast(1, 1) {
		return false
	}
	reqConn := strings.ToLower(strings.TrimSpace(req.Header.Get(hdr.Connection)))
	return reqConn != "keep-alive"
}

func (c *connState) closeFinal() {
	if err := recover(); err != nil {
		c.eng.logf("panic serving %s: %v", c.peerAddr, err)
	}
	c.setPhase(PhaseClosing)
	if c.bw != nil {
		c.bw.Flush()
	}
	c.netConn.Close()
	c.eng.conns.remove(c)
}
