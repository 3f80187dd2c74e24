// Package generate runs the external image-generation operation.
package generate

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Request carries everything one generation needs. SessionPath is an
// explicit session handle passed to the driver; the driver must not read
// session state from ambient files.
type Request struct {
	InputPath   string
	OutputPath  string
	Prompt      string
	Style       string
	Mode        string
	SessionPath string
}

// Generator produces a styled image at Request.OutputPath. On failure it
// must leave no output file behind.
type Generator interface {
	Generate(ctx context.Context, req Request) error
}

// Driver shells out to the external generator command.
type Driver struct {
	binPath string
}

// NewDriver returns a Driver invoking the generator binary at binPath.
func NewDriver(binPath string) *Driver {
	return &Driver{binPath: binPath}
}

func (d *Driver) Generate(ctx context.Context, req Request) error {
	args := []string{
		"--input", req.InputPath,
		"--output", req.OutputPath,
		"--style", req.Style,
		"--mode", req.Mode,
	}
	if req.SessionPath != "" {
		args = append(args, "--session", req.SessionPath)
	}
	args = append(args, "--prompt", req.Prompt)

	cmd := exec.CommandContext(ctx, d.binPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start generator: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			slog.Debug("generator", "line", line)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = "no stderr output"
		}
		return fmt.Errorf("generator exited: %w — %s", err, detail)
	}
	return nil
}
