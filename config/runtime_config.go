package config

// RuntimeConfig defines the subset of the configuration that can be
// safely modified at runtime through the web API. It excludes the
// hardware wiring and other settings that need a restart to be safe.
type RuntimeConfig struct {
	Sampling      SamplingConfig  `yaml:"Sampling" json:"Sampling"`
	InitRegisters map[string]byte `yaml:"InitRegisters" json:"InitRegisters"`
}
