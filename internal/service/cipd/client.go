package cipd

import (
	"context"
	"fmt"

	"github.com/oshokin/reclient-cfgs/internal/command"
	"github.com/oshokin/reclient-cfgs/internal/logger"
)

// Client invokes the cipd binary to materialize packages.
type Client struct {
	runner command.Runner
	quiet  bool
}

// ensureFileTemplate is the ensure file piped to cipd on stdin.
// ParanoidMode makes cipd verify content integrity of what it unpacks.
const ensureFileTemplate = "$ParanoidMode CheckIntegrity\n%s %s\n"

// NewClient returns a Client running cipd through the provided runner.
// When quiet is set, cipd's own log level is lowered to warnings.
func NewClient(runner command.Runner, quiet bool) *Client {
	return &Client{
		runner: runner,
		quiet:  quiet,
	}
}

// Ensure materializes pkg at ref into dir, verifying content integrity.
// It returns *AuthError when the failure coincides with the client being
// unauthenticated, and *FetchError for any other failure.
func (c *Client) Ensure(ctx context.Context, pkg, ref, dir string) error {
	logLevel := "info"
	if c.quiet {
		logLevel = "warning"
	}

	result, err := c.runner.Run(ctx, command.Request{
		Name: "cipd",
		Args: []string{
			"ensure",
			"-log-level=" + logLevel,
			"-root", dir,
			"-ensure-file", "-",
		},
		Stdin: fmt.Sprintf(ensureFileTemplate, pkg, ref),
	})
	if err != nil {
		if !c.LoggedIn(ctx) {
			return &AuthError{Output: result.Output, Err: err}
		}

		return &FetchError{Output: result.Output, Err: err}
	}

	logger.Info(ctx, result.Output)

	return nil
}

// LoggedIn probes `cipd auth-info` and reports whether the backend accepted
// the stored credentials.
func (c *Client) LoggedIn(ctx context.Context) bool {
	result, err := c.runner.Run(ctx, command.Request{
		Name: "cipd",
		Args: []string{"auth-info"},
	})

	logger.DebugKV(ctx, "cipd auth-info probe", "output", result.Output, "error", err)

	return err == nil
}
