// Package config holds the server configuration: dispatch timing, logging,
// audit, tracing and the device inventory.
package config

import "time"

// Device types understood by the device factory.
const (
	DeviceTypeBKOEM = "bkoem"
)

// Config is the complete plusd configuration.
type Config struct {
	Processor ProcessorConfig `yaml:"processor" toml:"processor"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Audit     AuditConfig     `yaml:"audit" toml:"audit"`
	Tracing   TracingConfig   `yaml:"tracing" toml:"tracing"`
	Devices   []DeviceConfig  `yaml:"devices" toml:"devices"`
}

// ProcessorConfig controls the command dispatch worker.
type ProcessorConfig struct {
	// Idle sleep between queue checks
	PollInterval time.Duration `yaml:"pollInterval" toml:"pollInterval" env:"PLUSD_PROCESSOR_POLL_INTERVAL"`

	// Execute commands still queued when Stop is called
	DrainOnStop bool `yaml:"drainOnStop" toml:"drainOnStop" env:"PLUSD_PROCESSOR_DRAIN_ON_STOP"`

	// Upper bound for graceful shutdown of the whole server
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" toml:"shutdownTimeout" env:"PLUSD_PROCESSOR_SHUTDOWN_TIMEOUT"`
}

// LoggingConfig controls the process log.
type LoggingConfig struct {
	File       string `yaml:"file" toml:"file" env:"PLUSD_LOG_FILE"`
	MaxSizeMB  int    `yaml:"maxSizeMb" toml:"maxSizeMb" env:"PLUSD_LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"maxBackups" toml:"maxBackups" env:"PLUSD_LOG_MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"maxAgeDays" toml:"maxAgeDays" env:"PLUSD_LOG_MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" toml:"compress" env:"PLUSD_LOG_COMPRESS"`
}

// AuditConfig controls the command audit trail.
type AuditConfig struct {
	Dir        string `yaml:"dir" toml:"dir" env:"PLUSD_AUDIT_DIR"`
	MaxSizeMB  int    `yaml:"maxSizeMb" toml:"maxSizeMb" env:"PLUSD_AUDIT_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"maxBackups" toml:"maxBackups" env:"PLUSD_AUDIT_MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"maxAgeDays" toml:"maxAgeDays" env:"PLUSD_AUDIT_MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" toml:"compress" env:"PLUSD_AUDIT_COMPRESS"`

	// SQLite journal path, empty disables the journal
	Journal string `yaml:"journal" toml:"journal" env:"PLUSD_AUDIT_JOURNAL"`
}

// TracingConfig controls OTLP trace export. Tracing is off without an endpoint.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint" toml:"endpoint" env:"PLUSD_OTEL_ENDPOINT"`
	ServiceName string `yaml:"serviceName" toml:"serviceName" env:"PLUSD_OTEL_SERVICE_NAME"`
}

// DeviceConfig describes one device in the inventory.
type DeviceConfig struct {
	ID   string `yaml:"id" toml:"id"`
	Type string `yaml:"type" toml:"type"`

	// TCP address (host:port) of the OEM interface
	Address string `yaml:"address" toml:"address"`

	// Serial device path, used instead of Address when set
	SerialPort string       `yaml:"serialPort" toml:"serialPort"`
	Serial     SerialConfig `yaml:"serial" toml:"serial"`

	ContinuousStreaming bool          `yaml:"continuousStreaming" toml:"continuousStreaming"`
	ConnectTimeout      time.Duration `yaml:"connectTimeout" toml:"connectTimeout"`
	ReadTimeout         time.Duration `yaml:"readTimeout" toml:"readTimeout"`
}

// SerialConfig holds serial line parameters. Zero values take driver defaults.
type SerialConfig struct {
	BaudRate int    `yaml:"baudRate" toml:"baudRate"`
	DataBits int    `yaml:"dataBits" toml:"dataBits"`
	StopBits int    `yaml:"stopBits" toml:"stopBits"`
	Parity   string `yaml:"parity" toml:"parity"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Processor: ProcessorConfig{
			PollInterval:    10 * time.Millisecond,
			DrainOnStop:     true,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Audit: AuditConfig{
			Dir:        "logs",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 90,
		},
		Tracing: TracingConfig{
			ServiceName: "plusd",
		},
	}
}

// Device returns the configuration of the device with the given id.
func (c *Config) Device(id string) (DeviceConfig, bool) {
	for _, d := range c.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return DeviceConfig{}, false
}
