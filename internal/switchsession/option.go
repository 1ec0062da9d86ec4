package switchsession

import "github.com/chuyangliu/dcell/internal/logger"

// Option customizes a Session at construction time.
type Option func(*Session)

// WithLogger attaches a structured logger to a Session.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) { s.logger = l }
}
