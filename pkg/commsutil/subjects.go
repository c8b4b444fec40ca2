package commsutil

import "fmt"

// Default COMMS subjects.
const (
	// SubjectPrefix is the default prefix for per-manager action subjects.
	SubjectPrefix = "actions"
)

// BuildActionSubject builds the COMMS subject one manager listens on.
func BuildActionSubject(prefix, manager string) string {
	if prefix == "" {
		prefix = SubjectPrefix
	}
	return fmt.Sprintf("%s.%s", prefix, manager)
}
