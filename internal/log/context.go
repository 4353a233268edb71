package log

import (
	"context"

	"github.com/rs/zerolog"
)

// FromContext returns the request-scoped logger stored by Middleware, or the
// base logger when ctx carries none.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		l := Base()
		return &l
	}
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		b := Base()
		return &b
	}
	return l
}

// WithJobID returns a context whose logger carries the job id.
func WithJobID(ctx context.Context, jobID string) context.Context {
	l := FromContext(ctx).With().Str(FieldJobID, jobID).Logger()
	return l.WithContext(ctx)
}
