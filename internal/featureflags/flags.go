package featureflags

import (
	"os"
	"strings"
)

// Known flags
const (
	// EmailDispatch turns notification emails on. Notifications are still
	// stored and recorded in the outbox as skipped when it is off.
	EmailDispatch = "email_dispatch"
)

var defaults = map[string]bool{
	EmailDispatch: true,
}

// Enabled reports whether a flag is on. Flags are read from env as
// FLAG_<NAME>=true/1/yes/on or false/0/no/off (case-insensitive); anything
// else falls back to the flag's default.
func Enabled(name string) bool {
	v := os.Getenv("FLAG_" + strings.ToUpper(name))
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaults[name]
	}
}
