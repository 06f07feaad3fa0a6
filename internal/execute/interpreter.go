package execute

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Interpreter is an external process contract. A non-session interpreter is
// started with Command and receives the block source on stdin. A session
// interpreter must accept a Python-compatible "-c <driver>" invocation.
type Interpreter struct {
	Name        string
	Command     []string
	VersionArgs []string
	Session     bool
}

// DefaultInterpreters returns the built-in interpreter table.
func DefaultInterpreters() map[string]Interpreter {
	return map[string]Interpreter{
		"python": {Name: "python", Command: []string{"python3"}, VersionArgs: []string{"--version"}, Session: true},
		"bash":   {Name: "bash", Command: []string{"bash"}, VersionArgs: []string{"--version"}},
		"sh":     {Name: "sh", Command: []string{"sh"}},
	}
}

// versionCache memoizes interpreter versions for the engine's lifetime.
type versionCache struct {
	mu       sync.Mutex
	versions map[string]string
}

func (v *versionCache) get(ctx context.Context, in Interpreter) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.versions == nil {
		v.versions = make(map[string]string)
	}
	if ver, ok := v.versions[in.Name]; ok {
		return ver
	}
	ver := probeVersion(ctx, in)
	v.versions[in.Name] = ver
	return ver
}

// probeVersion runs the interpreter with VersionArgs. Interpreters without
// version args are identified by their command line alone.
func probeVersion(ctx context.Context, in Interpreter) string {
	if len(in.VersionArgs) == 0 || len(in.Command) == 0 {
		return strings.Join(in.Command, " ")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	args := append(append([]string{}, in.Command[1:]...), in.VersionArgs...)
	// #nosec G204 - interpreter commands come from the site configuration
	out, err := exec.CommandContext(ctx, in.Command[0], args...).CombinedOutput()
	if err != nil {
		return "unavailable"
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return first
}
