package cli

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/complykit/audittrail/internal/store"
	"github.com/complykit/audittrail/pkg/audittrail"
	"github.com/complykit/audittrail/pkg/errclass"
)

// HomeEnv names the environment variable that selects the trail home.
const HomeEnv = "AUDITTRAIL_HOME"

// resolveHome picks the trail home from --home, $AUDITTRAIL_HOME, or the
// nearest .audittrail directory above the working directory.
func resolveHome() (string, error) {
	if homeDir != "" {
		return filepath.Abs(homeDir)
	}
	if env := os.Getenv(HomeEnv); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return store.Discover(cwd)
}

// openTrail opens the resolved trail home.
func openTrail(opts audittrail.Options) (*audittrail.Trail, error) {
	home, err := resolveHome()
	if err != nil {
		return nil, err
	}
	return audittrail.Open(home, opts)
}

// currentUser is the default actor for commands that record one.
func currentUser() string {
	for _, env := range []string{"AUDITTRAIL_USER", "USER", "USERNAME"} {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// parseTime accepts RFC 3339 timestamps or plain dates.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, errclass.ErrValidation.WithMessagef("time %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

// parseChange reads "field=old->new". Either side may be empty.
func parseChange(s string) (field, oldValue, newValue string, err error) {
	field, rest, ok := strings.Cut(s, "=")
	if !ok || field == "" {
		return "", "", "", errclass.ErrValidation.WithMessagef("change %q: want field=old->new", s)
	}
	oldValue, newValue, ok = strings.Cut(rest, "->")
	if !ok {
		return "", "", "", errclass.ErrValidation.WithMessagef("change %q: want field=old->new", s)
	}
	return field, oldValue, newValue, nil
}
