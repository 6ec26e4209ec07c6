package sources

import (
	"tc.com/token-prices/pkg/logging"
)

// BaseSource provides the common identity plumbing shared by all
// adapters: name, type, capability set and logger.
type BaseSource struct {
	name         string
	sourcetype   SourceType
	capabilities map[DataClass]bool
	logger       *logging.Logger
}

// NewBaseSource creates a new base source.
func NewBaseSource(name string, sourcetype SourceType, capabilities []DataClass, logger *logging.Logger) *BaseSource {
	caps := make(map[DataClass]bool, len(capabilities))
	for _, c := range capabilities {
		caps[c] = true
	}

	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	return &BaseSource{
		name:         name,
		sourcetype:   sourcetype,
		capabilities: caps,
		logger:       logger,
	}
}

// Name returns the source name
func (b *BaseSource) Name() string {
	return b.name
}

// Type returns the source type
func (b *BaseSource) Type() SourceType {
	return b.sourcetype
}

// Supports reports whether the source can answer the data class.
func (b *BaseSource) Supports(class DataClass) bool {
	return b.capabilities[class]
}

// Capabilities returns the supported data classes.
func (b *BaseSource) Capabilities() []DataClass {
	caps := make([]DataClass, 0, len(b.capabilities))
	for c := range b.capabilities {
		caps = append(caps, c)
	}
	return caps
}

// Logger returns the logger
func (b *BaseSource) Logger() *logging.Logger {
	return b.logger
}
