package controlplane

import "github.com/chuyangliu/dcell/internal/logger"

// Option customizes a ControlPlane at construction time.
type Option func(*ControlPlane)

// WithLogger attaches a structured logger to a ControlPlane.
func WithLogger(l logger.Logger) Option {
	return func(cp *ControlPlane) { cp.logger = l }
}
