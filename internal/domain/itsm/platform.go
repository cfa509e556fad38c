package itsm

import "strings"

// Platform identifies an external ITSM system
type Platform string

const (
	PlatformServiceNow Platform = "servicenow"
	PlatformJira       Platform = "jira"
)

// AllPlatforms returns all supported platforms
func AllPlatforms() []Platform {
	return []Platform{PlatformServiceNow, PlatformJira}
}

// IsValid returns true if the platform is supported
func (p Platform) IsValid() bool {
	switch p {
	case PlatformServiceNow, PlatformJira:
		return true
	}
	return false
}

// String returns the string representation
func (p Platform) String() string {
	return string(p)
}

// DisplayName returns a human readable platform name
func (p Platform) DisplayName() string {
	switch p {
	case PlatformServiceNow:
		return "ServiceNow"
	case PlatformJira:
		return "Jira"
	default:
		return string(p)
	}
}

// ParsePlatform parses a platform name case-insensitively
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", ErrInvalidPlatform
	}
	return p, nil
}
