package provisioning

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/2026musik-code/autoscrip/internal/store"
)

type State string

const (
	StateValidating State = "validating"
	StateConnecting State = "connecting"
	StateExecuting  State = "executing"
	StateParsing    State = "parsing"
	StateCommitting State = "committing"
	StateDone       State = "done"
)

var (
	domainPattern = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)
	hostPattern   = regexp.MustCompile(`^[A-Za-z0-9.:-]+$`)
	labelPattern  = regexp.MustCompile(`^[A-Za-z0-9._-]*$`)
)

const maxDomainLength = 253

// ValidationError rejects a request before any remote connection is made.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type InstallRequest struct {
	Host         string
	Port         int
	Username     string
	AuthKind     store.AuthKind
	Password     string
	PrivateKey   string
	Domain       string
	OS           string
	LicenseToken string
	SessionID    string
}

func (r *InstallRequest) normalize() {
	r.Host = strings.TrimSpace(r.Host)
	r.Username = strings.TrimSpace(r.Username)
	r.Domain = strings.TrimSpace(r.Domain)
	r.OS = strings.TrimSpace(r.OS)
	r.LicenseToken = strings.TrimSpace(r.LicenseToken)
	if r.AuthKind == "" {
		r.AuthKind = store.AuthPassword
	}
	if r.Port == 0 {
		r.Port = 22
	}
}

// Validate checks the request shape. License state is checked separately
// against the store.
func (r *InstallRequest) Validate() error {
	if err := validateTarget(r.Host, r.Port, r.Username); err != nil {
		return err
	}
	switch r.AuthKind {
	case store.AuthPassword:
		if r.Password == "" {
			return invalid("password", "required for password authentication")
		}
	case store.AuthPrivateKey:
		if strings.TrimSpace(r.PrivateKey) == "" {
			return invalid("privateKey", "required for private key authentication")
		}
	default:
		return invalid("authType", "unknown authentication kind %q", r.AuthKind)
	}
	if err := ValidateDomain(r.Domain); err != nil {
		return err
	}
	if !labelPattern.MatchString(r.OS) {
		return invalid("os", "may only contain letters, digits, dot, underscore and hyphen")
	}
	if r.LicenseToken == "" {
		return invalid("licenseToken", "required")
	}
	return nil
}

// ValidateDomain accepts letters, digits, dot and hyphen only. The domain
// is embedded into a remote shell command.
func ValidateDomain(domain string) error {
	if domain == "" {
		return invalid("domain", "required")
	}
	if len(domain) > maxDomainLength {
		return invalid("domain", "longer than %d characters", maxDomainLength)
	}
	if !domainPattern.MatchString(domain) {
		return invalid("domain", "may only contain letters, digits, dot and hyphen")
	}
	return nil
}

type RebuildRequest struct {
	Host            string
	Port            int
	Username        string
	CurrentPassword string
	TargetOS        string
	TargetVersion   string
	NewPassword     string
	SessionID       string
}

func (r *RebuildRequest) normalize() {
	r.Host = strings.TrimSpace(r.Host)
	r.Username = strings.TrimSpace(r.Username)
	r.TargetOS = strings.ToLower(strings.TrimSpace(r.TargetOS))
	r.TargetVersion = strings.TrimSpace(r.TargetVersion)
	if r.Port == 0 {
		r.Port = 22
	}
}

func (r *RebuildRequest) Validate() error {
	if err := validateTarget(r.Host, r.Port, r.Username); err != nil {
		return err
	}
	if r.CurrentPassword == "" {
		return invalid("currentPassword", "required")
	}
	versions, ok := RebuildTargets[r.TargetOS]
	if !ok {
		return invalid("targetOS", "unsupported operating system %q", r.TargetOS)
	}
	if !contains(versions, r.TargetVersion) {
		return invalid("targetVersion", "unsupported %s version %q", r.TargetOS, r.TargetVersion)
	}
	if r.NewPassword == "" {
		return invalid("newPassword", "required")
	}
	if strings.ContainsFunc(r.NewPassword, unicode.IsControl) {
		return invalid("newPassword", "must not contain control characters")
	}
	return nil
}

func validateTarget(host string, port int, username string) error {
	if host == "" {
		return invalid("ip", "required")
	}
	if !hostPattern.MatchString(host) {
		return invalid("ip", "not a valid host name or address")
	}
	if port < 1 || port > 65535 {
		return invalid("port", "must be between 1 and 65535")
	}
	if username == "" {
		return invalid("username", "required")
	}
	return nil
}

// RebuildTargets lists the operating systems the reinstall script is
// offered for, newest version first.
var RebuildTargets = map[string][]string{
	"ubuntu": {"24.04", "22.04", "20.04", "18.04"},
	"debian": {"12", "11", "10", "9"},
	"centos": {"7", "8", "9"},
	"alpine": {"3.20", "3.19", "3.18"},
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// InstallResult is the public data of a successful install.
type InstallResult struct {
	Domain   string `json:"domain"`
	UUID     string `json:"uuid"`
	AdminURL string `json:"adminUrl"`
}
