package config

import (
	"fmt"
	"time"
)

// Validate enforces bounds on the merged configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateProcessor(cfg.Processor); err != nil {
		return fmt.Errorf("processor validation failed: %w", err)
	}

	if err := validateAudit(cfg.Audit); err != nil {
		return fmt.Errorf("audit validation failed: %w", err)
	}

	if err := validateDevices(cfg.Devices); err != nil {
		return fmt.Errorf("device validation failed: %w", err)
	}

	return nil
}

func validateProcessor(p ProcessorConfig) error {
	if p.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", p.PollInterval)
	}
	if p.PollInterval > time.Second {
		return fmt.Errorf("poll interval %v exceeds 1s", p.PollInterval)
	}
	if p.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown timeout must be non-negative, got %v", p.ShutdownTimeout)
	}
	return nil
}

func validateAudit(a AuditConfig) error {
	if a.MaxSizeMB < 0 || a.MaxBackups < 0 || a.MaxAgeDays < 0 {
		return fmt.Errorf("rotation limits must be non-negative (size=%d backups=%d age=%d)",
			a.MaxSizeMB, a.MaxBackups, a.MaxAgeDays)
	}
	return nil
}

func validateDevices(devices []DeviceConfig) error {
	seen := make(map[string]bool, len(devices))
	for i, d := range devices {
		if d.ID == "" {
			return fmt.Errorf("device %d has no id", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate device id %q", d.ID)
		}
		seen[d.ID] = true

		switch d.Type {
		case DeviceTypeBKOEM:
			if (d.Address == "") == (d.SerialPort == "") {
				return fmt.Errorf("device %q needs exactly one of address or serialPort", d.ID)
			}
		default:
			return fmt.Errorf("device %q has unsupported type %q", d.ID, d.Type)
		}

		if d.ConnectTimeout < 0 || d.ReadTimeout < 0 {
			return fmt.Errorf("device %q timeouts must be non-negative", d.ID)
		}
	}
	return nil
}
