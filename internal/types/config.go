package types

type RunMode string

const (
	// ModeLocal is the mode for running both the consumer and the sweep locally
	ModeLocal RunMode = "local"
	// ModeConsumer is the mode for running just the payment event consumer
	ModeConsumer RunMode = "consumer"
	// ModeSweep is the mode for running just the late fee sweep
	ModeSweep RunMode = "sweep"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
)
