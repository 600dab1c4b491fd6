package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/crmimport/internal/core"
	mw "github.com/JonMunkholm/crmimport/internal/web/middleware"
)

// WithRequestMetadata adds IP and User-Agent to context for run history.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, mw.ClientIP(r)) // already rewritten by TrustedRealIP
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}
