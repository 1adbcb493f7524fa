package filetransport

import (
	"fmt"
	"strconv"
	"strings"
)

// parseRange parses a single "bytes=start-end" Range header value
// against a resource of the given size. Only one range is supported
// (the demo never emits multipart/byteranges); a header naming more
// than one range is rejected with errNoOverlap, and GetHandler answers
// that, like any other parse error, with 416.
func parseRange(s string, size int64) (httpRange, error) {
	const b = "bytes="
	if !strings.HasPrefix(s, b) {
		return httpRange{}, fmt.Errorf("filetransport: invalid range %q", s)
	}
	spec := strings.TrimPrefix(s, b)
	if strings.Contains(spec, ",") {
		return httpRange{}, errNoOverlap
	}
	i := strings.IndexByte(spec, '-')
	if i < 0 {
		return httpRange{}, fmt.Errorf("filetransport: invalid range %q", s)
	}
	startStr, endStr := strings.TrimSpace(spec[:i]), strings.TrimSpace(spec[i+1:])

	var r httpRange
	switch {
	case startStr == "":
		// suffix range: "-N" means the last N bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n < 0 {
			return httpRange{}, fmt.Errorf("filetransport: invalid suffix range %q", s)
		}
		if n > size {
			n = size
		}
		r.start = size - n
		r.length = n
	default:
		start, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || start < 0 || start >= size {
			return httpRange{}, errNoOverlap
		}
		r.start = start
		if endStr == "" {
			r.length = size - start
		} else {
			end, err := strconv.ParseInt(endStr, 10, 64)
			if err != nil || end < start {
				return httpRange{}, fmt.Errorf("filetransport: invalid range %q", s)
			}
			if end >= size {
				end = size - 1
			}
			r.length = end - start + 1
		}
	}
	return r, nil
}
