package engine

import "go.uber.org/zap"

// NewLogger builds the *zap.Logger an Arena and its collaborators are
// given explicitly at construction time — no package-global logger,
// matching how every other internal package in this module takes a
// *zap.Logger parameter rather than reaching for one.
func NewLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
