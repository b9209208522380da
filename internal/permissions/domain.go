package permissions

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// Permission represents an immutable catalog entry of the form "resource:action".
type Permission struct {
	ID         int64
	Name       string
	Resource   string
	Action     string
	Category   string
	IsSystem   bool
	BusinessID *uuid.UUID
	CreatedAt  time.Time
}

var folder = cases.Fold()

// Normalize canonicalizes a permission name for lookups and comparisons.
func Normalize(name string) string {
	return folder.String(strings.TrimSpace(name))
}

// Split breaks a normalized permission name into resource and action.
func Split(name string) (resource, action string, err error) {
	parts := strings.SplitN(name, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("permissions: malformed name %q", name)
	}
	return parts[0], parts[1], nil
}
