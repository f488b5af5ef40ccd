// Package statetap provides a lightweight meta-package that re-exports
// from submodules. This is the main entry point for the statetap
// interceptor library. Users should import specific packages based on
// their needs:
//   - github.com/statetap/statetap/core - facade contract, registry, config
//   - github.com/statetap/statetap/redux - Redux-style dispatch interceptor
//   - github.com/statetap/statetap/vuex - Vuex-style commit interceptor
//   - github.com/statetap/statetap/globals - global error handler interceptor
package statetap

import (
	"github.com/statetap/statetap/core"
	"github.com/statetap/statetap/globals"
	"github.com/statetap/statetap/redux"
	"github.com/statetap/statetap/telemetry"
	"github.com/statetap/statetap/vuex"
)

// Re-export core types for convenience
type (
	// Facade and event types
	SecureAPI    = core.SecureAPI
	Breadcrumb   = core.Breadcrumb
	ErrorPayload = core.ErrorPayload

	// Lifecycle types
	Interceptor     = core.Interceptor
	InterceptorInfo = core.InterceptorInfo
	Registry        = core.Registry

	// Configuration types
	Config          = core.Config
	Option          = core.Option
	DiscoveryConfig = core.DiscoveryConfig

	// Interfaces
	Logger = core.Logger
)

// Re-export common constructors
var (
	NewConfig       = core.NewConfig
	NewRegistry     = core.NewRegistry
	NewRecordingAPI = core.NewRecordingAPI
)

// New builds a registry pre-loaded with the three interceptor variants,
// configured from the given options. The host still chooses which
// interceptors to inject and when.
func New(opts ...core.Option) (*core.Registry, error) {
	cfg, err := core.NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	logger := core.NewProductionLogger(cfg.Name, cfg.Logging)

	var collector telemetry.Collector = &telemetry.NoOpCollector{}
	if cfg.Telemetry.Enabled {
		if otelCollector, err := telemetry.NewOTelCollector(cfg.Telemetry.ServiceName); err == nil {
			collector = otelCollector
		} else {
			logger.Warn("Falling back to no-op metrics", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	registry := core.NewRegistry(core.WithRegistryLogger(logger))

	interceptors := []core.Interceptor{
		redux.New(redux.WithConfig(cfg), redux.WithLogger(logger), redux.WithCollector(collector)),
		vuex.New(vuex.WithConfig(cfg), vuex.WithLogger(logger), vuex.WithCollector(collector)),
		globals.New(globals.WithLogger(logger), globals.WithCollector(collector)),
	}
	for _, i := range interceptors {
		if err := registry.Register(i); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
