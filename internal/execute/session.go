package execute

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"time"
)

// sessionDriver runs a JSON array of sources in one shared namespace and
// prints one JSON line per block as soon as it finishes.
const sessionDriver = `import contextlib, io, json, sys, time, traceback
blocks = json.loads(sys.stdin.read())
ns = {"__name__": "__main__"}
out = sys.__stdout__
for src in blocks:
    so, se = io.StringIO(), io.StringIO()
    code = 0
    start = time.monotonic()
    with contextlib.redirect_stdout(so), contextlib.redirect_stderr(se):
        try:
            exec(compile(src, "<block>", "exec"), ns)
        except SystemExit as e:
            code = e.code if isinstance(e.code, int) else (0 if e.code is None else 1)
        except BaseException:
            traceback.print_exc()
            code = 1
    out.write(json.dumps({"stdout": so.getvalue(), "stderr": se.getvalue(), "exit_code": code, "duration_ms": int((time.monotonic() - start) * 1000)}) + "\n")
    out.flush()
`

type sessionLine struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
}

// sessionOutcome holds per-block output for the blocks that completed. A
// block index at or beyond len(Blocks) did not finish.
type sessionOutcome struct {
	Blocks   []sessionLine
	TimedOut bool
	// Stderr is interpreter output outside any block, e.g. a crash.
	Stderr string
}

// runSession replays sources in order in one fresh interpreter.
func runSession(ctx context.Context, in Interpreter, dir string, sources []string, timeout time.Duration) (*sessionOutcome, error) {
	payload, err := json.Marshal(sources)
	if err != nil {
		return nil, err
	}
	argv := append(append([]string{}, in.Command...), "-c", sessionDriver)
	res, err := runProcess(ctx, argv, dir, bytes.NewReader(payload), timeout)
	if err != nil && res == nil {
		return nil, err
	}

	out := &sessionOutcome{TimedOut: res.TimedOut, Stderr: string(res.Stderr)}
	sc := bufio.NewScanner(bytes.NewReader(res.Stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 256<<20)
	for sc.Scan() {
		var line sessionLine
		if json.Unmarshal(sc.Bytes(), &line) != nil {
			break
		}
		out.Blocks = append(out.Blocks, line)
	}
	return out, err
}
