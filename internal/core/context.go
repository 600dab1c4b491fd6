package core

import "context"

type contextKey string

const (
	ctxKeyIPAddress contextKey = "import_ip"
	ctxKeyUserAgent contextKey = "import_ua"
	ctxKeyImportID  contextKey = "import_id"
)

// ContextWithIPAddress adds the caller IP address to context for run history.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent adds the caller User-Agent to context for run history.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// ContextWithImportID tags the context with the id of the running import.
// Stores use it to stamp the rows they write.
func ContextWithImportID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyImportID, id)
}

// GetIPAddressFromContext extracts IP address from context.
func GetIPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}

// GetUserAgentFromContext extracts User-Agent from context.
func GetUserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}

// GetImportIDFromContext extracts the import id from context.
func GetImportIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyImportID).(string); ok {
		return v
	}
	return ""
}
