package bastion

import "context"

type contextKey int

const (
	ctxKeySource contextKey = iota
)

// WithSource returns a context carrying the caller's source address or
// context (for example the client IP). It is stamped into audit entries.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, ctxKeySource, source)
}

// SourceFromContext returns the source set by WithSource, if any.
func SourceFromContext(ctx context.Context) string {
	v, ok := ctx.Value(ctxKeySource).(string)
	if !ok {
		return ""
	}
	return v
}
