package filetransport

import (
	"os"

	"github.com/restcore/resthttpd"
	"github.com/restcore/resthttpd/hdr"
)

// PutHandler returns a resthttpd.Handler that streams the request body
// to Store's file, overwriting it — grounded on VmHandlePackageWrite in
// the original demo. Works with either framing: the body is pulled via
// Request.GetPayload in a loop regardless of whether the client used
// Content-Length or chunked Transfer-Encoding, since that distinction
// is already resolved by the bodyReader installed at parse time.
func PutHandler(store Store) resthttpd.Handler {
	return func(req *resthttpd.Request, resp *resthttpd.Response, _ interface{}) error {
		f, err := os.Create(store.path())
		if err != nil {
			resp.SetStatus(resthttpd.StatusInternalServerError, "")
			resp.Header.Set(hdr.ContentLength, "0")
			return resp.SetPayload(nil, 0, true)
		}
		defer f.Close()

		buf := make([]byte, 32*1024)
		for {
			n, done, err := req.GetPayload(buf)
			if n > 0 {
				if _, werr := f.Write(buf[:n]); werr != nil {
					return werr
				}
			}
			if err != nil {
				return err
			}
			if done {
				break
			}
		}

		resp.SetStatus(resthttpd.StatusNoContent, "")
		resp.Header.Set(hdr.ContentLength, "0")
		return resp.SetPayload(nil, 0, true)
	}
}
