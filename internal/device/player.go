package device

import (
	"context"
	"os/exec"
)

// Player plays one file. Play blocks until the sound ends or ctx is done.
type Player interface {
	Play(ctx context.Context, path string) error
}

// ExecPlayer runs an external decoder, e.g. "mpg123 -q <file>".
type ExecPlayer struct {
	Command string
	Args    []string
}

func (p ExecPlayer) Play(ctx context.Context, path string) error {
	args := append(append([]string(nil), p.Args...), path)
	cmd := exec.CommandContext(ctx, p.Command, args...)
	return cmd.Run()
}
