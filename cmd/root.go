package cmd

import (
	"fmt"

	"github.com/alecthomas/kong"

	"driftwatch/config"
	"driftwatch/logging"
	"driftwatch/paths"
)

// CLI is the command-line surface parsed by kong
type CLI struct {
	Version     kong.VersionFlag `help:"Show version information"`
	LogLevel    string           `help:"Console log level (debug, info, warn, error)" env:"DRIFTWATCH_LOG_LEVEL"`
	LogFile     string           `help:"Custom path for the log file (disables rotation)" env:"DRIFTWATCH_LOG_FILE"`
	MaxLogFiles int              `help:"Maximum number of log files to keep (0 = unlimited)" default:"50"`
	DBPath      string           `help:"Path to the SQLite state database" type:"path" default:"~/.driftwatch/state.db" env:"DRIFTWATCH_DB_PATH"`

	Init    InitCmd    `cmd:"" help:"Create the default config file if absent"`
	Add     AddCmd     `cmd:"" help:"Add a repository to the watch list"`
	Remove  RemoveCmd  `cmd:"" help:"Remove a repository from the watch list"`
	List    ListCmd    `cmd:"" help:"List configured repositories"`
	Status  StatusCmd  `cmd:"" help:"Show the cumulative complexity delta per enabled repository"`
	Watch   WatchCmd   `cmd:"" help:"Watch one repository in the foreground"`
	Daemon  DaemonCmd  `cmd:"" help:"Watch all enabled repositories until interrupted"`
	Commit  CommitCmd  `cmd:"" help:"Force a checkpoint commit regardless of threshold"`
	Reset   ResetCmd   `cmd:"" help:"Zero the cumulative delta without committing"`
	History HistoryCmd `cmd:"" help:"List prior checkpoint commits"`

	// config is loaded in AfterApply, not a flag
	config *config.Config `kong:"-"`
}

// AfterApply loads the config file and initializes logging once parsing is
// done. The console level precedence is flag > env > config > "info".
func (c *CLI) AfterApply() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	c.config = cfg

	level := c.LogLevel
	if level == "" {
		level = cfg.Daemon.LogLevel
	}

	if _, err := logging.Initialize(level, c.LogFile, c.MaxLogFiles); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

// Config returns the loaded configuration
func (c *CLI) Config() *config.Config {
	return c.config
}

// DatabasePath returns the resolved state database path
func (c *CLI) DatabasePath() string {
	return paths.ExpandPath(c.DBPath)
}
