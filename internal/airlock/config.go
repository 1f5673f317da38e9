package airlock

// Mode controls whether the inspector blocks violating tool calls or only
// logs them. Shadow is the zero value: a freshly deployed inspector never
// blocks traffic until an operator explicitly turns enforcement on.
type Mode int

const (
	// ModeShadow logs detected violations but allows the call through.
	ModeShadow Mode = iota
	// ModeEnforce blocks calls that trip any layer.
	ModeEnforce
)

// RceConfig configures the anti-RCE pattern matcher (layer A).
type RceConfig struct {
	Enabled bool
	// TargetTools lists the tools whose input is scanned for dangerous code
	// patterns. Tools outside this list are never inspected by layer A.
	TargetTools []string
	// CustomPatterns are regexes appended after the built-ins, each scored
	// at customPatternScore (80), with the risk level derived from that score.
	CustomPatterns []string
}

// VelocityConfig configures the spending-velocity and loop-detection
// circuit breaker (layer B).
type VelocityConfig struct {
	Enabled        bool
	MaxCostCents   uint64
	WindowSeconds  uint64
	LoopThreshold  uint32
}

// ExfiltrationConfig configures the data-exfiltration shield (layer C).
type ExfiltrationConfig struct {
	Enabled           bool
	TargetTools       []string
	AllowedDomains    []string
	BlockIPAddresses  bool
}

// Config bundles all three inspection layers plus the enforcement mode.
type Config struct {
	Mode        Mode
	Rce         RceConfig
	Velocity    VelocityConfig
	Exfiltration ExfiltrationConfig
}

// defaultRceTargetTools lists the tool names the kept fixtures exercise
// against the pattern matcher: write_file, python_repl, bash,
// execute_command, create_file. The numeric tuning values below
// (max cost, window, loop threshold) and this tool list are not recoverable
// from the retained source tree: the config module's default_* helper
// function bodies were not part of the retrieval pack, only their call
// sites and the tests that exercise them. These defaults are reconstructed
// from those test fixtures rather than copied from a default_* body; see
// DESIGN.md for the reconstruction.
func defaultRceTargetTools() []string {
	return []string{"write_file", "python_repl", "bash", "execute_command", "create_file"}
}

func defaultNetworkTargetTools() []string {
	return []string{"http_get", "http_request", "fetch", "curl", "webhook_call"}
}

// DefaultRceConfig returns the reconstructed default anti-RCE configuration.
func DefaultRceConfig() RceConfig {
	return RceConfig{Enabled: true, TargetTools: defaultRceTargetTools()}
}

// DefaultVelocityConfig returns the reconstructed default circuit-breaker
// configuration: $1.00 per 60 second window, 3 identical calls to trip loop
// detection.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{Enabled: true, MaxCostCents: 100, WindowSeconds: 60, LoopThreshold: 3}
}

// DefaultExfiltrationConfig returns the reconstructed default shield
// configuration: no domain allowlist (all domains pass) and raw IP literals
// blocked.
func DefaultExfiltrationConfig() ExfiltrationConfig {
	return ExfiltrationConfig{
		Enabled:          true,
		TargetTools:      defaultNetworkTargetTools(),
		AllowedDomains:   nil,
		BlockIPAddresses: true,
	}
}

// DefaultConfig returns an inspector configuration with all three layers
// enabled in shadow mode.
func DefaultConfig() Config {
	return Config{
		Mode:         ModeShadow,
		Rce:          DefaultRceConfig(),
		Velocity:     DefaultVelocityConfig(),
		Exfiltration: DefaultExfiltrationConfig(),
	}
}
