// Package logging builds the process-wide zap logger.
package logging

import "go.uber.org/zap"

// New returns a production JSON logger, or a human-readable
// development logger when prod is false.
func New(prod bool) (*zap.Logger, error) {
	if prod {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
