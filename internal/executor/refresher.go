package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/genricoloni/nowpanel/internal/domain"
	"go.uber.org/zap"
)

// CommandRefresher notifies the widget host after each panel write by running
// a user command, e.g. ["pkill", "-RTMIN+8", "waybar"] or
// ["eww", "update", "nowpanel=%s"]. Every %s in an argument becomes the
// state file path.
type CommandRefresher struct {
	logger *zap.Logger
	binary string
	args   []string
}

// NewCommandRefresher builds a refresher from the configured command. An
// empty command gives a refresher that does nothing.
func NewCommandRefresher(logger *zap.Logger, cfg domain.Config) (*CommandRefresher, error) {
	command := cfg.GetRefreshCommand()
	if len(command) == 0 {
		logger.Info("No refresh command configured, the widget host must poll the state file")
		return &CommandRefresher{logger: logger}, nil
	}

	binary, err := exec.LookPath(command[0])
	if err != nil {
		return nil, fmt.Errorf("refresh command %q not found: %w", command[0], err)
	}

	logger.Info("Refresh command detected",
		zap.String("binary", binary),
		zap.Strings("args", command[1:]))

	return &CommandRefresher{
		logger: logger,
		binary: binary,
		args:   command[1:],
	}, nil
}

// Refresh runs the command and waits for it to exit
func (r *CommandRefresher) Refresh(ctx context.Context, statePath string) error {
	if r.binary == "" {
		return nil
	}

	args := make([]string, len(r.args))
	for i, arg := range r.args {
		args[i] = strings.ReplaceAll(arg, "%s", statePath)
	}

	r.logger.Debug("Refreshing widget host",
		zap.String("command", r.binary),
		zap.Strings("args", args))

	output, err := exec.CommandContext(ctx, r.binary, args...).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("refresh command exited with %d: %s", exitErr.ExitCode(), strings.TrimSpace(string(output)))
		}
		return fmt.Errorf("failed to run refresh command: %w", err)
	}
	return nil
}
