package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"

	"driftwatch/config"
	"driftwatch/paths"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	enabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// InitCmd creates the default config file if it does not exist
type InitCmd struct{}

// Run executes the init command
func (i *InitCmd) Run(cli *CLI) error {
	path := paths.ConfigPath()
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	if err := config.Default().SaveTo(path); err != nil {
		return err
	}
	fmt.Printf("Created default config: %s\n", path)
	return nil
}

// AddCmd adds a repository to the watch list
type AddCmd struct {
	Path string `arg:"" help:"Repository directory to watch"`
}

// Run executes the add command
func (a *AddCmd) Run(cli *CLI) error {
	abs, err := config.ValidateRepoPath(a.Path)
	if err != nil {
		return err
	}

	cfg := cli.Config()
	if err := cfg.AddRepo(abs); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return err
	}

	fmt.Printf("Added %s to the watch list\n", abs)
	return nil
}

// RemoveCmd removes a repository from the watch list
type RemoveCmd struct {
	Path string `arg:"" help:"Repository directory to stop watching"`
}

// Run executes the remove command
func (r *RemoveCmd) Run(cli *CLI) error {
	abs, err := absolutePath(r.Path)
	if err != nil {
		return err
	}

	cfg := cli.Config()
	if err := cfg.RemoveRepo(abs); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return err
	}

	fmt.Printf("Removed %s from the watch list\n", abs)
	return nil
}

// ListCmd prints the configured repositories
type ListCmd struct{}

// Run executes the list command
func (l *ListCmd) Run(cli *CLI) error {
	cfg := cli.Config()
	if len(cfg.Repos) == 0 {
		fmt.Println("No repositories configured. Use 'driftwatch add <path>' to start.")
		return nil
	}

	fmt.Println(headerStyle.Render("Watched repositories"))
	for _, repo := range cfg.Repos {
		settings := cfg.Resolve(repo)
		state := mutedStyle.Render("disabled")
		if repo.Enabled {
			state = enabledStyle.Render("enabled")
		}
		fmt.Printf("  %s  %s  %s\n", repo.Path, state,
			mutedStyle.Render(fmt.Sprintf("threshold %d", settings.Threshold)))
	}
	return nil
}
