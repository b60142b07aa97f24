package requestid

import "context"

// Unknown is reported in place of an ID when none is present in the context.
const Unknown = "unknown"

// contextKey is a typed context key; the type parameter keeps keys with the
// same name but different value types from colliding.
type contextKey[T any] string

func (k contextKey[T]) WithValue(ctx context.Context, v T) context.Context {
	return context.WithValue(ctx, k, v)
}

func (k contextKey[T]) Value(ctx context.Context) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}

var idContextKey contextKey[ID] = "request_id"

// NewContext returns a copy of ctx carrying id. A later call shadows any
// earlier ID, so FromContext always sees the most recent one.
func NewContext(ctx context.Context, id ID) context.Context {
	return idContextKey.WithValue(ctx, id)
}

// FromContext returns the ID stored in ctx, if any.
func FromContext(ctx context.Context) (ID, bool) {
	return idContextKey.Value(ctx)
}

// StringFromContext returns the text form of the ID stored in ctx, or
// Unknown when there is none.
func StringFromContext(ctx context.Context) string {
	if id, ok := FromContext(ctx); ok {
		return id.String()
	}
	return Unknown
}
