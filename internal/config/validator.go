package config

import (
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "lock.duration_minutes")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Upper bounds that catch unit mistakes (seconds typed as minutes and the like).
const (
	maxLockMinutes     = 24 * 60
	maxIdleMinutes     = 7 * 24 * 60
	maxSweepSeconds    = 60 * 60
	maxSendBuffer      = 1 << 16
	maxHistoryLimit    = 1_000_000
	maxShutdownSeconds = 300
)

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateGateway()...)
	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateLock()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateServer validates the ServerConfig
func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if c.Server.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "server.addr",
			Value:   c.Server.Addr,
			Message: "must not be empty",
		})
	} else if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		errors = append(errors, ValidationError{
			Field:   "server.addr",
			Value:   c.Server.Addr,
			Message: "must be host:port",
		})
	}

	if c.Server.ShutdownTimeoutSeconds < 0 || c.Server.ShutdownTimeoutSeconds > maxShutdownSeconds {
		errors = append(errors, ValidationError{
			Field:   "server.shutdown_timeout_seconds",
			Value:   c.Server.ShutdownTimeoutSeconds,
			Message: fmt.Sprintf("must be between 0 and %d", maxShutdownSeconds),
		})
	}

	return errors
}

// validateGateway validates the GatewayConfig
func (c *Config) validateGateway() []ValidationError {
	var errors []ValidationError

	if c.Gateway.SendBuffer <= 0 || c.Gateway.SendBuffer > maxSendBuffer {
		errors = append(errors, ValidationError{
			Field:   "gateway.send_buffer",
			Value:   c.Gateway.SendBuffer,
			Message: fmt.Sprintf("must be between 1 and %d", maxSendBuffer),
		})
	}

	for i, pattern := range c.Gateway.AllowedOrigins {
		field := fmt.Sprintf("gateway.allowed_origins[%d]", i)
		if strings.TrimSpace(pattern) == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   pattern,
				Message: "must not be empty",
			})
			continue
		}
		if _, err := glob.Compile(pattern, '.'); err != nil {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   pattern,
				Message: "invalid glob pattern",
			})
		}
	}

	headers := []struct {
		field string
		value string
	}{
		{"gateway.identity.user_id_header", c.Gateway.Identity.UserIDHeader},
		{"gateway.identity.user_name_header", c.Gateway.Identity.UserNameHeader},
		{"gateway.identity.email_header", c.Gateway.Identity.EmailHeader},
		{"gateway.identity.avatar_header", c.Gateway.Identity.AvatarHeader},
	}
	for _, h := range headers {
		// Empty keeps the gateway default.
		if h.value == "" {
			continue
		}
		if !isHeaderName(h.value) {
			errors = append(errors, ValidationError{
				Field:   h.field,
				Value:   h.value,
				Message: "must be a valid HTTP header name",
			})
		}
	}

	return errors
}

// validateSession validates the SessionConfig
func (c *Config) validateSession() []ValidationError {
	var errors []ValidationError

	if c.Session.IdleTimeoutMinutes <= 0 || c.Session.IdleTimeoutMinutes > maxIdleMinutes {
		errors = append(errors, ValidationError{
			Field:   "session.idle_timeout_minutes",
			Value:   c.Session.IdleTimeoutMinutes,
			Message: fmt.Sprintf("must be between 1 and %d", maxIdleMinutes),
		})
	}

	if c.Session.HistoryLimit <= 0 || c.Session.HistoryLimit > maxHistoryLimit {
		errors = append(errors, ValidationError{
			Field:   "session.history_limit",
			Value:   c.Session.HistoryLimit,
			Message: fmt.Sprintf("must be between 1 and %d", maxHistoryLimit),
		})
	}

	if c.Session.SweepIntervalSeconds <= 0 || c.Session.SweepIntervalSeconds > maxSweepSeconds {
		errors = append(errors, ValidationError{
			Field:   "session.sweep_interval_seconds",
			Value:   c.Session.SweepIntervalSeconds,
			Message: fmt.Sprintf("must be between 1 and %d", maxSweepSeconds),
		})
	}

	return errors
}

// validateLock validates the LockConfig
func (c *Config) validateLock() []ValidationError {
	var errors []ValidationError

	if c.Lock.DurationMinutes <= 0 || c.Lock.DurationMinutes > maxLockMinutes {
		errors = append(errors, ValidationError{
			Field:   "lock.duration_minutes",
			Value:   c.Lock.DurationMinutes,
			Message: fmt.Sprintf("must be between 1 and %d", maxLockMinutes),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if strings.ContainsRune(c.Logging.Dir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "logging.dir",
			Value:   c.Logging.Dir,
			Message: "path contains invalid null character",
		})
	}

	return errors
}

// isHeaderName reports whether s is a token per RFC 7230.
func isHeaderName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > 127 || !isTokenChar(byte(r)) {
			return false
		}
	}
	return true
}

func isTokenChar(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	}
	return strings.IndexByte("!#$%&'*+-.^_`|~", b) >= 0
}
