package cli

import (
	"errors"
	"fmt"

	"github.com/complykit/audittrail/pkg/errclass"
)

// hintFor returns a follow-up suggestion for well-known failures.
func hintFor(err error) string {
	switch {
	case errors.Is(err, errclass.ErrNotFound) && homeDir == "":
		return suggestInit()
	case errors.Is(err, errclass.ErrSigningUnavailable):
		return fmt.Sprintf("Run %s and export the key as %s (or put it in <home>/.env).",
			code("audittrail keygen"), "AUDITTRAIL_SIGNING_KEY")
	case errors.Is(err, errclass.ErrChainBroken):
		return fmt.Sprintf("Run %s for details.", code("audittrail doctor --strict"))
	case errors.Is(err, errclass.ErrFormatUnsupported):
		return "The data directory was written by a newer audittrail; upgrade to read it."
	default:
		return ""
	}
}

// suggestInit provides a suggestion to initialize a trail.
func suggestInit() string {
	return fmt.Sprintf("Run %s to create a trail here, or pass --home.", code("audittrail init"))
}

func code(s string) string {
	return "'" + s + "'"
}
