package shell

// Strategy names the routing policy applied to a request.
type Strategy string

const (
	StrategyNetworkFirst Strategy = "network_first"
	StrategyCacheFirst   Strategy = "cache_first"
	StrategyPassthrough  Strategy = "passthrough"
)

// Source names where a routed response came from.
type Source string

const (
	SourceNetwork       Source = "network"
	SourceCache         Source = "cache"
	SourceCacheFallback Source = "cache_fallback"
)

// Metrics receives controller counters.
type Metrics interface {
	RecordRoute(strategy Strategy, source Source)
	RecordNetworkFailure(strategy Strategy)
	RecordStoreFailure()
	RecordInstall(success bool)
	RecordGenerationDeleted()
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordRoute(Strategy, Source)  {}
func (NoopMetrics) RecordNetworkFailure(Strategy) {}
func (NoopMetrics) RecordStoreFailure()           {}
func (NoopMetrics) RecordInstall(bool)            {}
func (NoopMetrics) RecordGenerationDeleted()      {}
