package service

import "context"

type requestIDKey struct{}

// WithRequestID returns a context carrying id. Process uses it as the log
// request_id and the journal entry ID instead of minting one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the ID set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
