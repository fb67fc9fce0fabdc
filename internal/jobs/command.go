package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// commandWaitDelay bounds how long a command may linger after it was asked to stop
const commandWaitDelay = 5 * time.Second

// commandHandler runs an external program: `<command...> <method>` with the job args
// as JSON on stdin. Its stdout becomes the job result.
type commandHandler struct {
	argv []string
	dir  string
}

func newCommandHandler(m Manifest) (Handler, error) {
	if _, err := exec.LookPath(m.Command[0]); err != nil {
		return nil, fmt.Errorf("job type %q: %w", m.Name, err)
	}
	return &commandHandler{argv: m.Command, dir: m.Dir}, nil
}

func (h *commandHandler) Run(ctx context.Context, method string, args json.RawMessage) (any, error) {
	argv := append(append([]string{}, h.argv[1:]...), method)

	cmd := exec.CommandContext(ctx, h.argv[0], argv...)
	cmd.Dir = h.dir
	cmd.Stdin = bytes.NewReader(args)
	// Give the command the same chance to clean up that employees get.
	cmd.Cancel = func() error { return cmd.Process.Signal(unix.SIGTERM) }
	cmd.WaitDelay = commandWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("command failed: %w", err)
		}
		return nil, fmt.Errorf("command failed: %w: %s", err, msg)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if json.Valid(out) && len(out) > 0 {
		return json.RawMessage(out), nil
	}
	return string(out), nil
}
