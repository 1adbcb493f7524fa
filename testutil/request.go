// Package testutil provides a synthetic-request builder for exercising
// resthttpd's parser and handlers without a real socket, adapted from
// the teacher's th.NewTRequest in the same spirit: build the literal
// wire bytes and feed them through the real parser, rather than
// constructing a Request struct by hand and risking it drifting from
// what ReadRequest actually produces.
package testutil

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/restcore/resthttpd"
	"github.com/restcore/resthttpd/hdr"
)

// NewRequest builds an in-process *resthttpd.Request for method/target
// with the given header set and body, by assembling the literal
// request-line/header-block/body bytes and running them through
// resthttpd.ReadRequest. header values are written in map iteration
// order; tests should not depend on header ordering. If header
// supplies neither Content-Length nor Transfer-Encoding, a
// Content-Length of len(body) is added (0 for an empty body) so the
// resulting request has a well-defined frame.
func NewRequest(method, target string, header map[string]string, body string) (*resthttpd.Request, error) {
	if method == "" {
		method = resthttpd.GET
	}
	if header == nil {
		header = map[string]string{}
	}
	if _, ok := header[hdr.ContentLength]; !ok && header[hdr.TransferEncoding] == "" {
		header[hdr.ContentLength] = fmt.Sprintf("%d", len(body))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\r\n", method, target, resthttpd.HTTP11)
	for k, v := range header {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("\r\n")
	b.WriteString(body)

	return resthttpd.ReadRequest(bufio.NewReader(strings.NewReader(b.String())), resthttpd.DefaultConfig())
}

// ChunkedBody encodes chunks (already-split byte sequences) as an RFC
// 7230 §4.1 chunked body, terminating chunk included — used by tests
// that want to hand-assemble a chunked request body without wiring a
// live chunkWriter.
func ChunkedBody(chunks ...string) string {
	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "%x\r\n%s\r\n", len(c), c)
	}
	b.WriteString("0\r\n\r\n")
	return b.String()
}

// DrainPayload reads a request body to completion, returning the
// concatenated bytes delivered across however many GetPayload calls it
// took.
func DrainPayload(req *resthttpd.Request) (string, error) {
	var out strings.Builder
	buf := make([]byte, 4096)
	for {
		n, done, err := req.GetPayload(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if err != nil && err != io.EOF {
			return out.String(), err
		}
		if done {
			return out.String(), nil
		}
	}
}
