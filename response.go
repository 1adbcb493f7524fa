package resthttpd

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/restcore/resthttpd/hdr"
	"github.com/restcore/resthttpd/sniff"
)

// Response is the status line, header collection, and streaming
// write API of §3/§4.F. A single Response is reused across the
// SetPayload calls a handler makes for one request.
type Response struct {
	StatusCode int
	Reason     string
	Header     hdr.Header

	headerSent bool
	chunked    bool
	completed  bool // fixed body written, or terminating chunk sent

	req *Request
	bw  *bufio.Writer
}

// newResponse returns a Response defaulted to "200 OK", per §4.F.
func newResponse(req *Request, bw *bufio.Writer) *Response {
	return &Response{
		StatusCode: StatusOK,
		Header:     make(hdr.Header),
		req:        req,
		bw:         bw,
	}
}

// SetStatus overrides the default "200 OK" status line. It must be
// called before the first SetPayload.
func (resp *Response) SetStatus(code int, reason string) {
	resp.StatusCode = code
	resp.Reason = reason
}

// SetHeader sets a response header. It must be called before the
// first SetPayload, since a chunked response sends its header block
// on the first payload call.
func (resp *Response) SetHeader(name, value string) {
	resp.Header.Set(name, value)
}

// SetPayload is VmRESTSetHttpPayload, §4.F. bufCap must equal
// len(buf); it is taken as an explicit parameter, not inferred from
// the slice header, so a caller porting C code that over-allocates buf
// and tracks a separate length variable has a direct place to put it
// instead of reproducing the original sizeof(response) bug (§9).
// Exactly one of Content-Length or Transfer-Encoding: chunked must be
// set via SetHeader before the first call.
//
// A fixed-length response is written whole in one call. A chunked
// response takes one call per chunk: done=false emits the chunk and
// leaves the stream open, done=true (or an empty buf) emits the
// terminating 0-chunk after it and completes the response.
func (resp *Response) SetPayload(buf []byte, bufCap int, done bool) error {
	if bufCap != len(buf) {
		return newError("Response.SetPayload", KindInvalidParams, fmt.Errorf("bufCap %d does not match %d bytes passed", bufCap, len(buf)))
	}
	if resp.completed {
		return newError("Response.SetPayload", KindInvalidState, fmt.Errorf("response already completed"))
	}
	te := strings.ToLower(strings.TrimSpace(resp.Header.Get(hdr.TransferEncoding)))
	cl := resp.Header.Get(hdr.ContentLength)

	switch {
	case te == "chunked":
		resp.chunked = true
		return resp.setChunkedPayload(buf, done)
	case cl != "":
		return resp.setFixedPayload(buf)
	default:
		return newError("Response.SetPayload", KindValidationFailed, fmt.Errorf("neither Content-Length nor chunked Transfer-Encoding is set"))
	}
}

// finish completes whatever the handler left unfinished once dispatch
// returns: nothing on the wire yet means an empty response (chunked if
// that's what the handler declared, else Content-Length: 0), a chunked
// stream missing its terminator gets one. A completed response is left
// alone.
func (resp *Response) finish() error {
	if resp.completed {
		return nil
	}
	if !resp.headerSent {
		te := strings.ToLower(strings.TrimSpace(resp.Header.Get(hdr.TransferEncoding)))
		if te != "chunked" && resp.Header.Get(hdr.ContentLength) == "" {
			resp.Header.Set(hdr.ContentLength, "0")
		}
	}
	return resp.SetPayload(nil, 0, true)
}

func (resp *Response) setFixedPayload(buf []byte) error {
	if resp.headerSent {
		return newError("Response.SetPayload", KindInvalidState, fmt.Errorf("fixed-length response already sent"))
	}
	n, err := strconv.ParseInt(resp.Header.Get(hdr.ContentLength), 10, 64)
	if err != nil || n != int64(len(buf)) {
		return newError("Response.SetPayload", KindValidationFailed, fmt.Errorf("Content-Length %s does not match %d bytes delivered", resp.Header.Get(hdr.ContentLength), len(buf)))
	}
	resp.sniffContentType(buf)
	if err := resp.writeStatusAndHeaders(); err != nil {
		return newError("Response.SetPayload", KindConnectionReset, err)
	}
	if !resp.bodySuppressed() {
		if _, err := resp.bw.Write(buf); err != nil {
			return newError("Response.SetPayload", KindConnectionReset, err)
		}
	}
	resp.headerSent = true
	resp.completed = true
	if err := resp.bw.Flush(); err != nil {
		return newError("Response.SetPayload", KindConnectionReset, err)
	}
	return nil
}

func (resp *Response) setChunkedPayload(buf []byte, done bool) error {
	if !resp.headerSent {
		resp.sniffContentType(buf)
		if err := resp.writeStatusAndHeaders(); err != nil {
			return newError("Response.SetPayload", KindConnectionReset, err)
		}
		resp.headerSent = true
	}
	if !resp.bodySuppressed() {
		cw := &chunkWriter{bw: resp.bw}
		if len(buf) > 0 {
			if err := cw.writeChunk(buf); err != nil {
				return newError("Response.SetPayload", KindConnectionReset, err)
			}
		}
		if done || len(buf) == 0 {
			if err := cw.writeTerminator(); err != nil {
				return newError("Response.SetPayload", KindConnectionReset, err)
			}
		}
	}
	if done || len(buf) == 0 {
		resp.completed = true
	}
	if err := resp.bw.Flush(); err != nil {
		return newError("Response.SetPayload", KindConnectionReset, err)
	}
	return nil
}

// bodySuppressed reports whether the message body must stay off the
// wire even though the handler produced one: a HEAD response carries
// the same headers a GET would but no body (RFC 7231 §4.3.2). The
// handler's payload calls still run for their framing bookkeeping,
// they just write nothing.
func (resp *Response) bodySuppressed() bool {
	return resp.req != nil && resp.req.Method == HEAD
}

// sniffContentType applies the Content-Type sniffing fallback, the
// same idea as the teacher's chunk_writer.go writeHeader ("apply
// sniffing algorithm to body" when no content type is set), only when
// the handler left it unset.
func (resp *Response) sniffContentType(p []byte) {
	if resp.Header.Get(hdr.ContentType) != "" {
		return
	}
	resp.Header.Set(hdr.ContentType, sniff.DetectContentType(p))
}

func (resp *Response) writeStatusAndHeaders() error {
	reason := resp.Reason
	if reason == "" {
		reason = StatusText(resp.StatusCode)
	}
	if _, err := fmt.Fprintf(resp.bw, "%s %d %s\r\n", HTTP11, resp.StatusCode, reason); err != nil {
		return err
	}
	if err := resp.Header.Write(resp.bw); err != nil {
		return err
	}
	_, err := resp.bw.Write(CrLf)
	return err
}

// writeFailureResponse is VmRESTSendFailureResponse: a minimal error
// response the dispatcher sends when parsing fails before a Response
// exists, or a handler never wrote one. closeConn must be the same
// keep-alive decision the caller will later act on (e.g. via
// shouldClose): a mismatch here would have the connection reused on
// the socket side while the client, reading the header it was just
// sent, tears it down.
func writeFailureResponse(bw *bufio.Writer, code int, closeConn bool) error {
	reason := StatusText(code)
	if _, err := fmt.Fprintf(bw, "%s %d %s\r\n", HTTP11, code, reason); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(bw, "%s: 0\r\n", hdr.ContentLength); err != nil {
		return err
	}
	if closeConn {
		if _, err := fmt.Fprintf(bw, "%s: close\r\n", hdr.Connection); err != nil {
			return err
		}
	}
	if _, err := bw.Write(CrLf); err != nil {
		return err
	}
	return bw.Flush()
}
