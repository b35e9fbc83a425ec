// Package device derives human-readable names and stable fingerprints for the
// terminals that open register sessions. The display name shows up in audit
// events; the fingerprint ties a token to the device that requested it.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mssola/useragent"
)

// Service computes device fingerprints. Disabled instances return empty
// fingerprints so callers can treat binding as optional.
type Service struct {
	enabled bool
}

func NewService(enabled bool) *Service {
	return &Service{enabled: enabled}
}

// ParseUserAgent turns a raw User-Agent header into an operator-readable
// device name like "Chrome 120 on Mac OS X".
func ParseUserAgent(rawUserAgent string) string {
	if strings.TrimSpace(rawUserAgent) == "" {
		return "Unknown Device"
	}

	parsed := useragent.New(rawUserAgent)
	browserName, browserVersion := parsed.Browser()
	if browserName == "" {
		browserName = "Unknown Browser"
	}

	osName := parsed.OSInfo().Name
	if osName == "" {
		osName = parsed.Platform()
	}
	if osName == "" {
		osName = "Unknown OS"
	}

	name := browserName
	if major := majorVersion(browserVersion); major != "" {
		name += " " + major
	}
	return strings.TrimSpace(name + " on " + osName)
}

// ComputeFingerprint hashes the stable parts of the user agent: browser name,
// major version, OS, and platform. Minor version bumps keep the same
// fingerprint; a different browser or OS changes it.
func (s *Service) ComputeFingerprint(rawUserAgent string) string {
	if !s.enabled {
		return ""
	}

	parsed := useragent.New(rawUserAgent)
	browserName, browserVersion := parsed.Browser()

	normalized := strings.Join([]string{
		browserName,
		majorVersion(browserVersion),
		parsed.OS(),
		parsed.Platform(),
	}, "|")

	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func majorVersion(version string) string {
	if version == "" {
		return ""
	}
	major, _, _ := strings.Cut(version, ".")
	return major
}
