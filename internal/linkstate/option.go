package linkstate

import "github.com/chuyangliu/dcell/internal/logger"

// Option customizes a LinkState at construction time.
type Option func(*LinkState)

// WithLogger sets a custom logger for the LinkState.
func WithLogger(l logger.Logger) Option {
	return func(ls *LinkState) {
		ls.logger = l
	}
}
