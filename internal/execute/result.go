package execute

import (
	"bufio"
	"encoding/json"
	"strings"
	"time"
)

// RichMarker prefixes a stdout line carrying a rich artifact as JSON.
const RichMarker = "::sitegen-rich::"

// Artifact is a non-text output such as an image or an HTML fragment.
type Artifact struct {
	MIME string `json:"mime"`
	// Data is base64 for binary types and literal text otherwise.
	Data string `json:"data"`
}

// Result is the outcome of one block.
type Result struct {
	Block     Block
	Key       string
	Stdout    string
	Stderr    string
	Artifacts []Artifact
	ExitCode  int
	Duration  time.Duration
	Cached    bool
	TimedOut  bool
	// Skipped is set when execution is disabled.
	Skipped bool
	// Err is a classified ExecutionFailure when the block did not succeed.
	Err error
}

// Failed reports whether the block produced an error.
func (r Result) Failed() bool {
	return r.Err != nil
}

// entry is the persisted form of a Result.
type entry struct {
	Stdout     string     `json:"stdout"`
	Stderr     string     `json:"stderr"`
	Artifacts  []Artifact `json:"artifacts,omitempty"`
	ExitCode   int        `json:"exit_code"`
	DurationMS int64      `json:"duration_ms"`
}

func entryFor(r Result) entry {
	return entry{
		Stdout:     r.Stdout,
		Stderr:     r.Stderr,
		Artifacts:  r.Artifacts,
		ExitCode:   r.ExitCode,
		DurationMS: r.Duration.Milliseconds(),
	}
}

// splitRich separates artifact marker lines from ordinary stdout.
func splitRich(stdout string) (string, []Artifact) {
	if !strings.Contains(stdout, RichMarker) {
		return stdout, nil
	}
	var (
		text      strings.Builder
		artifacts []Artifact
	)
	sc := bufio.NewScanner(strings.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 64<<20)
	for sc.Scan() {
		line := sc.Text()
		if payload, ok := strings.CutPrefix(line, RichMarker); ok {
			var a Artifact
			if err := json.Unmarshal([]byte(payload), &a); err == nil && a.MIME != "" {
				artifacts = append(artifacts, a)
				continue
			}
		}
		text.WriteString(line)
		text.WriteByte('\n')
	}
	out := text.String()
	if !strings.HasSuffix(stdout, "\n") {
		out = strings.TrimSuffix(out, "\n")
	}
	return out, artifacts
}
