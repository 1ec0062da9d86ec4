package flowtable

import "github.com/chuyangliu/dcell/internal/logger"

// Option customizes a FlowTable at construction time.
type Option func(*FlowTable)

// WithLogger sets a custom logger for the FlowTable.
func WithLogger(l logger.Logger) Option {
	return func(ft *FlowTable) {
		ft.logger = l
	}
}
