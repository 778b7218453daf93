package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ryanm101/spielpendium/internal/config"
)

func newConfigCommand(app *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}

	configCmd.AddCommand(newConfigShowCommand(app))
	configCmd.AddCommand(newConfigInitCommand(app))

	return configCmd
}

func newConfigShowCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.out.json {
				return app.out.result(map[string]any{"source": app.cfgSource, "config": app.cfg}, nil)
			}
			data, err := app.cfg.YAML()
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			source := app.cfgSource
			if source == "" {
				source = "(defaults)"
			}
			w := app.out.stdout
			fmt.Fprintln(w, "# Active configuration")
			fmt.Fprintln(w, "# Source:", source)
			_, err = w.Write(data)
			return err
		},
	}
}

func newConfigInitCommand(app *app) *cobra.Command {
	var path string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write an example configuration file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigLoad: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = config.DefaultPath()
			}
			if _, err := os.Stat(path); err == nil && !overwrite {
				return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { // #nosec G301
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(config.Example()), 0o644); err != nil { // #nosec G306
				return fmt.Errorf("write config: %w", err)
			}
			return app.out.result(map[string]string{"path": path, "status": "created"}, func(w io.Writer) {
				fmt.Fprintf(w, "Created config file: %s\n", path)
			})
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Where to write the file (default ~/.config/spielpendium/config.yaml)")
	cmd.Flags().BoolVar(&overwrite, "force", false, "Overwrite an existing file")
	return cmd
}
