package cloud

import (
	"log/slog"

	"github.com/codex-k8s/adstackctl/internal/logging"
)

type options struct {
	logger *slog.Logger
}

// Option configures cloud clients.
type Option func(*options)

// WithLogger sets the logger used for operation metadata.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: logging.Discard()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
