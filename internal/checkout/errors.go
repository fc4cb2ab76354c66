package checkout

import (
	"sort"
	"strings"
)

// FieldErrors is a validation or business-rule failure keyed by input
// field, returned to the buyer as the 400 response body. No state has been
// persisted when one of these is returned.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for field, msg := range e {
		parts = append(parts, field+": "+msg)
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
