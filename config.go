package bastion

import "time"

// Config holds configuration for the Bastion engine.
type Config struct {
	// AuditVisibilityChecks records denied Authorize calls. Authorize is
	// used for UI visibility and is not audited by default; denials of
	// mutating actions go through Enforce and are always recorded.
	AuditVisibilityChecks bool `json:"audit_visibility_checks,omitempty" yaml:"audit_visibility_checks"`

	// AuditVisibilityAllowed additionally records allowed Authorize calls
	// when AuditVisibilityChecks is set.
	AuditVisibilityAllowed bool `json:"audit_visibility_allowed,omitempty" yaml:"audit_visibility_allowed"`

	// MaxCommitRetries bounds how often a mutation is re-read and
	// re-validated after losing a version race. Zero means the default of
	// 5; a negative value disables retries.
	MaxCommitRetries int `json:"max_commit_retries,omitempty" yaml:"max_commit_retries"`

	// AuditRetryTimeout bounds how long a failing audit write is retried
	// before the operation fails with ErrAuditWriteFailed. The caller's
	// context deadline applies as well. Zero or negative means the default
	// of 10s.
	AuditRetryTimeout time.Duration `json:"audit_retry_timeout,omitempty" yaml:"audit_retry_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxCommitRetries:  5,
		AuditRetryTimeout: 10 * time.Second,
	}
}

// withDefaults fills the zero fields of c from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxCommitRetries == 0 {
		c.MaxCommitRetries = d.MaxCommitRetries
	}
	if c.AuditRetryTimeout <= 0 {
		c.AuditRetryTimeout = d.AuditRetryTimeout
	}
	return c
}

func (c Config) commitAttempts() int {
	if c.MaxCommitRetries < 0 {
		return 1
	}
	return c.MaxCommitRetries + 1
}
