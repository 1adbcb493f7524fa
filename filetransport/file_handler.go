package filetransport

import (
	"io"
	"os"
	"strconv"

	"github.com/restcore/resthttpd"
	"github.com/restcore/resthttpd/hdr"
)

// GetHandler returns a resthttpd.Handler that streams Store's file back
// to the client, chunked, or as a single Content-Range response when
// the client sent a Range header — grounded on VmHandlePackageRead in
// the original demo, generalized with the byte-range support the
// teacher's filetransport package (serveContent) offered for plain
// GETs.
func GetHandler(store Store) resthttpd.Handler {
	return func(req *resthttpd.Request, resp *resthttpd.Response, _ interface{}) error {
		f, err := os.Open(store.path())
		if err != nil {
			resp.SetStatus(resthttpd.StatusNotFound, "")
			resp.Header.Set(hdr.ContentLength, "0")
			return resp.SetPayload(nil, 0, true)
		}
		defer f.Close()

		fi, err := f.Stat()
		if err != nil {
			return err
		}

		if rangeHdr, ok := req.GetHeader(hdr.Range); ok && rangeHdr != "" {
			return serveRange(f, fi.Size(), rangeHdr, resp)
		}
		return serveWhole(f, resp)
	}
}

func serveWhole(f *os.File, resp *resthttpd.Response) error {
	resp.Header.Set(hdr.TransferEncoding, "chunked")
	buf := make([]byte, 32*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if werr := resp.SetPayload(buf[:n], n, false); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return resp.SetPayload(nil, 0, true)
		}
		if err != nil {
			return err
		}
	}
}

func serveRange(f *os.File, size int64, rangeHdr string, resp *resthttpd.Response) error {
	r, err := parseRange(rangeHdr, size)
	if err != nil {
		resp.SetStatus(resthttpd.StatusRequestedRangeNotSatisfiable, "")
		resp.Header.Set(hdr.ContentLength, "0")
		return resp.SetPayload(nil, 0, true)
	}
	buf := make([]byte, r.length)
	if _, err := f.Seek(r.start, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.ReadFull(f, buf); err != nil {
		return err
	}
	resp.SetStatus(resthttpd.StatusPartialContent, "")
	resp.Header.Set(hdr.ContentRange, r.contentRange(size))
	resp.Header.Set(hdr.ContentLength, strconv.FormatInt(r.length, 10))
	return resp.SetPayload(buf, len(buf), true)
}
