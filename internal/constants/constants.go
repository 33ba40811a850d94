// Package constants is responsible for defining the constants used in the application.
// It also provides utility functions to get the default configuration paths.
package constants

import (
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// CmdName is the name of the command line tool.
	CmdName = "exalsius-node-agent"

	// DefaultAppFolder is the name of the default root folder.
	DefaultAppFolder = "exalsius"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelInfo

	// CredentialsFileName is the base name of the persisted credential store.
	CredentialsFileName = "config.env"

	// DefaultPCIDatabaseURL is where the online tier of the PCI reference database is fetched from.
	DefaultPCIDatabaseURL = "https://pci-ids.ucw.cz/v2.2/pci.ids"

	// MetricsNamespace prefixes every exported run metric.
	MetricsNamespace = "exalsius_node_agent"
)

// Version is the version of the agent. It is overridden at build time.
var Version = "Dev"

type options struct {
	baseDir func() (string, error)
}

type option func(*options)

// GetDefaultConfigPath is the default path to the configuration directory.
// It is empty if the user configuration directory cannot be determined.
func GetDefaultConfigPath(opts ...option) string {
	o := options{baseDir: os.UserConfigDir}
	for _, opt := range opts {
		opt(&o)
	}

	base, err := o.baseDir()
	if err != nil || base == "" {
		return ""
	}
	return filepath.Join(base, DefaultAppFolder)
}

// GetDefaultCredentialsPath is the default path to the credential store, or empty if there is no
// configuration directory.
func GetDefaultCredentialsPath(opts ...option) string {
	dir := GetDefaultConfigPath(opts...)
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, CredentialsFileName)
}
