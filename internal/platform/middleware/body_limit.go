package middleware

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// BodyLimit caps request bodies at maxBytes. A declared Content-Length over
// the cap is refused before the handler runs; otherwise the body fails with
// a 413 as soon as a read crosses the cap.
func BodyLimit(maxBytes int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > maxBytes {
				return payloadTooLargeError(maxBytes)
			}
			req.Body = &cappedBody{
				rc:  req.Body,
				r:   io.LimitReader(req.Body, maxBytes+1),
				max: maxBytes,
			}
			return next(c)
		}
	}
}

// cappedBody reads at most max+1 bytes so it can tell "exactly max" from
// "over max". Once over, every read fails.
type cappedBody struct {
	rc   io.ReadCloser
	r    io.Reader
	read int64
	max  int64
}

func (b *cappedBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.read += int64(n)
	if b.read > b.max {
		return 0, payloadTooLargeError(b.max)
	}
	return n, err
}

func (b *cappedBody) Close() error { return b.rc.Close() }

func payloadTooLargeError(limit int64) error {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limit))
}
