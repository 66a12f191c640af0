package monitoring

import "github.com/mwonya/entrypoint/pkg/errors"

// ValidateProbeConfig validates probe configuration
func ValidateProbeConfig(config ProbeConfig) error {
	if config.Timeout < 0 {
		return errors.NewValidationError("probe timeout cannot be negative", nil)
	}

	switch config.Type {
	case ProbeTypeTCP, ProbeTypeHTTP:
		if config.Host == "" {
			return errors.NewValidationError("host is required for network probes", nil)
		}
		if config.Port <= 0 || config.Port > 65535 {
			return errors.NewValidationError("port must be between 1 and 65535", nil)
		}
		if config.Type == ProbeTypeHTTP && config.HTTP.Path != "" && config.HTTP.Path[0] != '/' {
			return errors.NewValidationError("HTTP path must start with '/'", nil)
		}

	case ProbeTypeProcess:
		if config.PIDFile == "" {
			return errors.NewValidationError("PID file is required for process probe", nil)
		}

	default:
		return errors.NewValidationError("unsupported probe type: "+string(config.Type), nil)
	}

	return nil
}
