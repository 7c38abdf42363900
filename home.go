package clawless

import (
	"os"
	"path/filepath"
)

// Home returns the clawless state directory. It defaults to ~/.clawless but
// can be overridden with the CLAWLESS_HOME environment variable.
func Home() string {
	if v := os.Getenv("CLAWLESS_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".clawless")
}

// SchedulesPath returns the default schedules persistence path.
func SchedulesPath() string {
	return filepath.Join(Home(), "schedules.json")
}

// CallbackStatePath returns the default bound-chat persistence path.
func CallbackStatePath() string {
	return filepath.Join(Home(), "callback-chat-state.json")
}

// MemoryNotesPath returns the default memory notes file path.
func MemoryNotesPath() string {
	return filepath.Join(Home(), "MEMORY.md")
}

// SemanticStorePath returns the default semantic-recall SQLite path.
func SemanticStorePath() string {
	return filepath.Join(Home(), "conversation-semantic-memory.db")
}

// EnsureHome creates the clawless home directory if it doesn't exist.
func EnsureHome() error {
	return os.MkdirAll(Home(), 0o755)
}
