package commands

import (
	"bytes"

	"github.com/exalsius/node-agent/internal/credentials"
)

type (
	AppConfig = appConfig
	NewRunner = newRunner
	Runner    = runner
)

// Overrides returns the credential overrides of the configuration.
func (c AppConfig) Overrides() credentials.Overrides {
	return c.overrides()
}

// WithNewRunner overrides how the agent is created from the configuration.
func WithNewRunner(nr NewRunner) Options {
	return func(o *options) {
		o.newRunner = nr
	}
}

// SetArgs set some arguments on root command for tests.
func (a *App) SetArgs(args ...string) {
	a.cmd.SetArgs(args)
}

// SetOutput captures the command output for tests.
func (a *App) SetOutput(out *bytes.Buffer) {
	a.cmd.SetOut(out)
	a.cmd.SetErr(out)
}

// Config returns the configuration of the app.
func (a *App) Config() AppConfig {
	return a.config
}

// NewAgent creates the agent wired by the app.
var NewAgent = newAgent
