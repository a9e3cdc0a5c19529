package stepexec

// Launcher turns a tokenized command line into the argv that actually gets
// spawned. It replaces the teacher's global, mutable shell-launcher string
// with a construction-time dependency: the default launcher runs argv
// unchanged, and tests inject a launcher that prefixes argv with "echo" to
// validate tokenization without running anything.
type Launcher func(argv []string) []string

// DefaultLauncher runs the tokenized argv exactly as given.
func DefaultLauncher(argv []string) []string {
	return argv
}

// PrefixLauncher returns a Launcher that prepends prefix to argv, e.g.
// PrefixLauncher("echo") to observe what would have been executed.
func PrefixLauncher(prefix ...string) Launcher {
	return func(argv []string) []string {
		out := make([]string, 0, len(prefix)+len(argv))
		out = append(out, prefix...)
		out = append(out, argv...)
		return out
	}
}
