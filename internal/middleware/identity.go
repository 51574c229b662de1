package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const uploadedByKey contextKey = "uploaded_by"

// WithUploadedBy returns a context carrying the resolved uploader identity.
func WithUploadedBy(ctx context.Context, uploadedBy string) context.Context {
	return context.WithValue(ctx, uploadedByKey, uploadedBy)
}

// UploadedByFromContext returns the uploader identity set by ResolveIdentity,
// or "" if none was resolved.
func UploadedByFromContext(ctx context.Context) string {
	v, _ := ctx.Value(uploadedByKey).(string)
	return v
}

// ResolveIdentity reads the uploader identity from X-User-Id, a header set
// by the external auth layer that terminates in front of this service.
// Authentication itself is out of scope here: by the time a request reaches
// this middleware it has already been authenticated, and this only lifts
// the resolved identity into context for handlers to read.
func ResolveIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploadedBy := r.Header.Get("X-User-Id")
		next.ServeHTTP(w, r.WithContext(WithUploadedBy(r.Context(), uploadedBy)))
	})
}
