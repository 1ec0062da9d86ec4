package router

import "github.com/chuyangliu/dcell/internal/logger"

// Option customizes a Router at construction time.
type Option func(*Router)

// WithLogger attaches a structured logger to a Router.
func WithLogger(l logger.Logger) Option {
	return func(r *Router) { r.logger = l }
}
