// Package filetransport backs the demo's /v1/pkg resource: a single
// file under a configured root directory, read with optional byte
// ranges and written wholesale on PUT/POST. Adapted from the teacher's
// filetransport package (itself adapted from net/http's fs.go), pared
// down from a general static file server to the one-resource scope
// VmHandlePackageRead/Write covers in the original C demo.
package filetransport

import (
	"errors"
	"fmt"
)

// Store resolves the single demo resource to a path on disk: Root/Name.
type Store struct {
	Root string
	Name string
}

func (s Store) path() string {
	return s.Root + "/" + s.Name
}

// errNoOverlap is returned by parseRange if the requested range doesn't
// overlap the content at all.
var errNoOverlap = errors.New("filetransport: range does not overlap content")

// httpRange is one byte-range-spec parsed from a Range header, per
// RFC 7233 §2.1. Grounded on the teacher's httpRange (http_range.go),
// trimmed to the single-range case the demo handler needs — multipart
// byteranges responses are not implemented.
type httpRange struct {
	start, length int64
}

func (r httpRange) contentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.start, r.start+r.length-1, size)
}
