package execute

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// processResult is the raw outcome of one child process.
type processResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// runProcess starts argv in dir with stdin and waits up to timeout. On
// timeout or cancellation the whole process group is killed and the partial
// output is returned.
func runProcess(ctx context.Context, argv []string, dir string, stdin io.Reader, timeout time.Duration) (*processResult, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty interpreter command")
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// #nosec G204 - interpreter commands come from the site configuration
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", argv[0], err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	res := &processResult{}
	var err error
	select {
	case <-runCtx.Done():
		killProcessGroup(cmd)
		<-done
		res.Stdout, res.Stderr = stdout.Bytes(), stderr.Bytes()
		res.Duration = time.Since(start)
		res.ExitCode = -1
		if ctx.Err() != nil {
			return res, fmt.Errorf("execution cancelled: %w", ctx.Err())
		}
		res.TimedOut = true
		return res, nil
	case err = <-done:
	}

	res.Stdout, res.Stderr = stdout.Bytes(), stderr.Bytes()
	res.Duration = time.Since(start)
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to execute %s: %w", argv[0], err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}
