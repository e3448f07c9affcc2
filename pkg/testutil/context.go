package testutil

import (
	"net/http"

	"outbreak/pkg/requestcontext"
)

// WithClient attaches client metadata the way the metadata middleware does.
func WithClient(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}
