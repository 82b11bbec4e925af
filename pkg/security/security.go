// Package security provides validation, sanitization, and limits for the job registry.
package security

import (
	"math"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/job-registry/pkg/core"
)

// Security limits and configuration
const (
	// MaxJobTypeLength is the maximum length for job types and operation names
	MaxJobTypeLength = 255

	// MaxPayloadSize is the maximum size in bytes for a job payload (1MB)
	MaxPayloadSize = 1 << 20

	// MaxArguments is the maximum number of arguments per job
	MaxArguments = 1024

	// MaxArgumentsSize is the maximum combined size of all arguments (1MB)
	MaxArgumentsSize = 1 << 20

	// MaxHostURLLength is the maximum length for host URLs
	MaxHostURLLength = 255

	// MaxLoad is the hard limit for a single job's load weight
	MaxLoad = 1000.0

	// MaxTextLength is the maximum length for free-form text such as creator names
	MaxTextLength = 255
)

// validJobType matches alphanumeric, hyphens, underscores, and dots
var validJobType = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// ValidateJobType validates a job type identifier
func ValidateJobType(name string) error {
	if name == "" {
		return core.ErrInvalidJobType
	}
	if len(name) > MaxJobTypeLength {
		return core.ErrJobTypeTooLong
	}
	if !validJobType.MatchString(name) {
		return core.ErrInvalidJobType
	}
	return nil
}

// ValidateOperation validates an operation name. Empty operations are allowed.
func ValidateOperation(op string) error {
	if op == "" {
		return nil
	}
	if len(op) > MaxJobTypeLength || !validJobType.MatchString(op) {
		return core.ErrInvalidOperation
	}
	return nil
}

// ValidateHostURL validates a host identity. Hosts are identified by an absolute
// URL with scheme and host part, e.g. "http://worker-1:8080".
func ValidateHostURL(raw string) error {
	if raw == "" || len(raw) > MaxHostURLLength {
		return core.ErrInvalidHostURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return core.ErrInvalidHostURL
	}
	return nil
}

// ValidatePayload enforces the payload and argument size limits.
func ValidatePayload(payload string, args []string) error {
	if len(payload) > MaxPayloadSize {
		return core.ErrPayloadTooLarge
	}
	if len(args) > MaxArguments {
		return core.ErrPayloadTooLarge
	}
	total := 0
	for _, a := range args {
		total += len(a)
	}
	if total > MaxArgumentsSize {
		return core.ErrPayloadTooLarge
	}
	return nil
}

// ValidateLoad checks that a load weight is finite and within [0, MaxLoad].
func ValidateLoad(load float64) error {
	if math.IsNaN(load) || math.IsInf(load, 0) || load < 0 || load > MaxLoad {
		return core.ErrInvalidLoad
	}
	return nil
}

// ClampCapacity ensures an advertised host capacity is non-negative and finite.
// Zero means unlimited.
func ClampCapacity(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if math.IsInf(c, 1) {
		return 0
	}
	return c
}

// SanitizeText strips control characters and truncates to MaxTextLength runes.
func SanitizeText(s string) string {
	if s == "" {
		return ""
	}

	var sanitized strings.Builder
	sanitized.Grow(len(s))
	for _, r := range s {
		if r >= 32 && r != 127 {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()
	if utf8.RuneCountInString(result) > MaxTextLength {
		runes := []rune(result)
		result = string(runes[:MaxTextLength])
	}
	return result
}
