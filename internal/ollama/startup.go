package ollama

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrUnreachable is returned by EnsureReady when no server answers.
var ErrUnreachable = errors.New("ollama is not reachable; start it with: ollama serve")

const warmupTimeout = 30 * time.Second

// EnsureReady makes model usable for tagging: it checks the server, pulls the
// model when it is missing and sends one warm-up request so the first run
// does not pay the load time. Progress goes to w. A failed warm-up is only
// reported.
func EnsureReady(ctx context.Context, c *Client, model string, w io.Writer) error {
	if !c.Reachable(ctx) {
		return ErrUnreachable
	}

	if !c.HasModel(ctx, model) {
		fmt.Fprintf(w, "tagging model %s not installed, pulling\n", model)
		if err := c.Pull(ctx, model, pullReporter(w)); err != nil {
			return err
		}
	}

	warmCtx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()
	if _, err := c.Chat(warmCtx, model, []Message{{Role: "user", Content: "ping"}}, nil); err != nil {
		fmt.Fprintf(w, "tagging model %s: warm-up failed: %v\n", model, err)
		return nil
	}
	fmt.Fprintf(w, "tagging model %s ready\n", model)
	return nil
}

// pullReporter prints status changes and every tenth percent, not every line.
func pullReporter(w io.Writer) func(PullProgress) {
	lastStatus, lastDecile := "", -1
	return func(p PullProgress) {
		pct := p.Percent()
		if p.Status == lastStatus && (pct < 0 || pct/10 == lastDecile) {
			return
		}
		if p.Status != lastStatus {
			lastDecile = -1
		}
		lastStatus = p.Status
		if pct < 0 {
			fmt.Fprintf(w, "  %s\n", p.Status)
			return
		}
		lastDecile = pct / 10
		fmt.Fprintf(w, "  %s %d%%\n", p.Status, pct)
	}
}
