package resthttpd

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// bodyReader implements the streaming body-read algorithm of §4.E,
// grounded directly on VmRESTGetHttpPayload's two framing modes in
// httpUtilsExternal.c: a Content-Length counter that decrements to
// zero, or a chunked reader that alternates between parsing a
// chunk-size line and delivering that chunk's bytes.
type bodyReader struct {
	br  *bufio.Reader
	cfg Config

	chunked       bool
	dataRemaining int64 // Content-Length total remaining, or current chunk's remaining bytes
	done          bool
	stripCRLF     bool

	totalRead int64 // cumulative bytes delivered so far, chunked mode only
	maxTotal  int64 // Config.maxDataPerConnBytes(), 0 means unbounded
}

func newEmptyBodyReader() *bodyReader {
	return &bodyReader{done: true}
}

func newFixedBodyReader(br *bufio.Reader, n int64, stripCRLF bool) *bodyReader {
	r := &bodyReader{br: br, dataRemaining: n, stripCRLF: stripCRLF}
	if n == 0 {
		r.done = true
	}
	return r
}

func newChunkedBodyReader(br *bufio.Reader, cfg Config) *bodyReader {
	return &bodyReader{
		br:        br,
		cfg:       cfg,
		chunked:   true,
		stripCRLF: cfg.StripCRLFQuirk,
		maxTotal:  cfg.maxDataPerConnBytes(),
	}
}

// maxDrainBytes caps how much of an unconsumed request body the
// connection loop will read before giving up on reuse, the same
// trade-off as the teacher's maxPostHandlerReadBytes: if the bytes are
// already sitting in the OS buffer we might as well read them, but
// past this point we'd rather force a close than stall the next
// keep-alive request behind a slow or oversized body.
const maxDrainBytes = 256 << 10

// Close drains any body bytes a handler left unread so the
// connection's byte stream stays synchronized for the next request on
// the same socket, mirroring the teacher's response.finishRequest ->
// body.Close pairing. It reports false when the remainder exceeds
// maxDrainBytes (or a read error occurs), telling the caller to close
// the connection instead of reusing it.
func (r *bodyReader) Close() (drained bool, err error) {
	if r.done {
		return true, nil
	}
	if !r.chunked && r.dataRemaining > maxDrainBytes {
		return false, nil
	}
	var buf [4096]byte
	var total int64
	for !r.done {
		if total > maxDrainBytes {
			return false, nil
		}
		n, done, gerr := r.GetPayload(buf[:])
		total += int64(n)
		if gerr != nil {
			return false, gerr
		}
		if done {
			break
		}
	}
	return true, nil
}

// GetPayload is VmRESTGetHttpPayload: it fills buf with up to
// len(buf) bytes of body, reports whether the body is now fully
// consumed, and an error on a client disconnect mid-body
// (CONNECTION_CLOSED, §4.E edge case).
func (r *bodyReader) GetPayload(buf []byte) (n int, done bool, err error) {
	if r.done {
		return 0, true, nil
	}
	if len(buf) == 0 {
		return 0, false, nil
	}
	if r.chunked {
		return r.getChunkedPayload(buf)
	}
	return r.getFixedPayload(buf)
}

func (r *bodyReader) getFixedPayload(buf []byte) (int, bool, error) {
	want := int64(len(buf))
	if want > r.dataRemaining {
		want = r.dataRemaining
	}
	n, err := io.ReadFull(r.br, buf[:want])
	if n > 0 && r.stripCRLF {
		n = stripCRLFInPlace(buf[:n])
	}
	r.dataRemaining -= want
	if err != nil {
		r.done = true
		return n, true, newError("bodyReader.GetPayload", KindConnectionClosed, err)
	}
	if r.dataRemaining == 0 {
		r.done = true
	}
	return n, r.done, nil
}

func (r *bodyReader) getChunkedPayload(buf []byte) (int, bool, error) {
	if r.dataRemaining == 0 {
		size, err := readChunkSize(r.br, r.cfg.MaxChunkLineLen)
		if err != nil {
			r.done = true
			return 0, true, err
		}
		if size == 0 {
			r.done = true
			if err := discardTrailers(r.br); err != nil {
				return 0, true, err
			}
			return 0, true, nil
		}
		r.dataRemaining = size
	}

	want := int64(len(buf))
	if want > r.dataRemaining {
		want = r.dataRemaining
	}
	n, err := io.ReadFull(r.br, buf[:want])
	if n > 0 && r.stripCRLF {
		n = stripCRLFInPlace(buf[:n])
	}
	r.dataRemaining -= int64(n)
	if err != nil {
		r.done = true
		return n, true, newError("bodyReader.GetPayload", KindConnectionClosed, err)
	}
	r.totalRead += int64(n)
	if r.maxTotal > 0 && r.totalRead > r.maxTotal {
		r.done = true
		return n, true, newError("bodyReader.GetPayload", KindPayloadTooLarge, fmt.Errorf("chunked body exceeds configured limit %d bytes", r.maxTotal))
	}
	if r.dataRemaining == 0 {
		if err := discardCRLF(r.br); err != nil {
			r.done = true
			return n, true, err
		}
	}
	return n, false, nil
}

// stripCRLFInPlace reproduces VmRESTCopyDataWithoutCRLF: it compacts
// buf in place, dropping every 0x0D/0x0A byte, and returns the new
// length. Opt-in via Config.StripCRLFQuirk; corrupts binary payloads
// that legitimately contain those bytes, which is why it defaults to
// off (§9).
func stripCRLFInPlace(buf []byte) int {
	w := 0
	for _, b := range buf {
		if b == '\r' || b == '\n' {
			continue
		}
		buf[w] = b
		w++
	}
	return w
}

// readChunkSize reads one chunk-size line (hex digits, optional
// ";extension", terminated by CRLF) and returns the decoded size.
func readChunkSize(br *bufio.Reader, maxLine int) (int64, error) {
	line, err := readCRLFLine(br, maxLine)
	if err != nil {
		return 0, err
	}
	if i := bytes.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = bytes.TrimSpace(line)
	n, err := parseHexUint(line)
	if err != nil {
		return 0, newError("readChunkSize", KindValidationFailed, err)
	}
	return int64(n), nil
}

func parseHexUint(v []byte) (uint64, error) {
	if len(v) == 0 {
		return 0, fmt.Errorf("empty chunk size")
	}
	var n uint64
	for i, b := range v {
		var d byte
		switch {
		case '0' <= b && b <= '9':
			d = b - '0'
		case 'a' <= b && b <= 'f':
			d = b - 'a' + 10
		case 'A' <= b && b <= 'F':
			d = b - 'A' + 10
		default:
			return 0, fmt.Errorf("invalid byte %q in chunk size", b)
		}
		if i == 16 {
			return 0, fmt.Errorf("chunk size too large")
		}
		n = n<<4 | uint64(d)
	}
	return n, nil
}

// discardCRLF consumes the CRLF that follows every non-terminal
// chunk's data.
func discardCRLF(br *bufio.Reader) error {
	for i := 0; i < 2; i++ {
		if _, err := br.ReadByte(); err != nil {
			return newError("discardCRLF", KindConnectionClosed, err)
		}
	}
	return nil
}

// discardTrailers reads and drops header lines up to the blank line
// that ends the terminating chunk. Trailers are explicitly not
// supported (§6); this only keeps the connection's byte stream
// synchronized for the next request.
func discardTrailers(br *bufio.Reader) error {
	for {
		line, err := br.ReadSlice('\n')
		if err != nil {
			return newError("discardTrailers", KindConnectionClosed, err)
		}
		trimmed := bytes.TrimRight(line, "\r\n")
		if len(trimmed) == 0 {
			return nil
		}
	}
}

// readCRLFLine reads one line up to (and excluding) its terminating
// CRLF. maxLen bounds the line length; 0 means unbounded.
func readCRLFLine(br *bufio.Reader, maxLen int) ([]byte, error) {
	line, err := br.ReadSlice('\n')
	if err != nil {
		if err == bufio.ErrBufferFull {
			return nil, newError("readCRLFLine", KindValidationFailed, fmt.Errorf("line exceeds buffer"))
		}
		return nil, newError("readCRLFLine", KindConnectionClosed, err)
	}
	if maxLen > 0 && len(line) > maxLen {
		return nil, newError("readCRLFLine", KindValidationFailed, fmt.Errorf("line of %d bytes exceeds limit %d", len(line), maxLen))
	}
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
	}
	if n > 0 && line[n-1] == '\r' {
		n--
	}
	return line[:n], nil
}
