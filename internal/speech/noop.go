// Package speech announces recognitions out loud.
package speech

import (
	"github.com/hammamikhairi/aura/internal/domain"
	"github.com/hammamikhairi/aura/internal/logger"
)

var _ domain.Announcer = (*NoOp)(nil)

// NoOp is the announcer used when speech is disabled.
type NoOp struct {
	log *logger.Logger
}

// NewNoOp creates a silent announcer.
func NewNoOp(log *logger.Logger) *NoOp {
	return &NoOp{log: log}
}

// Announce only logs text.
func (n *NoOp) Announce(text string) {
	n.log.Debug("speech: muted, would say %q", text)
}
