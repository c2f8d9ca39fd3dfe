package tenant

import (
	"errors"
	"strings"
)

// System is the reserved operator tenant. It always exists and is the only
// tenant allowed to manage other tenants.
const System = "system"

const maxIDLen = 63

// ErrInvalidID is returned when a tenant identifier fails validation.
var ErrInvalidID = errors.New("tenant: invalid id")

// ValidateID checks that id is a usable tenant identifier: lowercase
// letters, digits and inner hyphens, at most 63 characters. The rules keep
// ids safe as storage partition keys and cache key segments.
func ValidateID(id string) error {
	if id == "" || len(id) > maxIDLen {
		return ErrInvalidID
	}
	if id[0] == '-' || id[len(id)-1] == '-' {
		return ErrInvalidID
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return ErrInvalidID
		}
	}
	return nil
}

// Resolve picks the tenant for a request. raw is the value of the X-Tenant
// header; when empty the configured fallback is used. The returned id is
// always validated.
func Resolve(raw, fallback string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		id = fallback
	}
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return id, nil
}
