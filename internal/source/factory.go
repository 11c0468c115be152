package source

import (
	"fmt"

	"go.uber.org/zap"

	"finextract/internal/config"
	"finextract/internal/port"
)

// ProviderFactory builds an ExtractionSource from the remote source config.
type ProviderFactory func(cfg *config.SourceConfig, logger *zap.Logger) (port.ExtractionSource, error)

// registry of source provider factories, keyed by config.SourceConfig.Provider.
var providers = map[string]ProviderFactory{
	ProviderRemote: func(cfg *config.SourceConfig, logger *zap.Logger) (port.ExtractionSource, error) {
		return NewRemoteSource(cfg, logger)
	},
}

// RegisterProvider registers a source provider factory by name.
func RegisterProvider(name string, factory ProviderFactory) {
	providers[name] = factory
}

// NewSource creates an ExtractionSource using the registered factory.
func NewSource(cfg *config.SourceConfig, logger *zap.Logger) (port.ExtractionSource, error) {
	factory, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown source provider: %s", cfg.Provider)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return factory(cfg, logger)
}
