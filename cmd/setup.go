package main

import (
	"context"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/amalgam/internal/shared"
)

// SetupDatabase initializes the database and runs migrations.
//
// When the config file does not exist it is created from the template first.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		configPath = cmd.String("config")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
			r.writePlain("✓ Created %s\n", configPath)
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	s, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	versions, err := shared.AppliedVersions(s.db)
	if err != nil {
		return fmt.Errorf("failed to read migration state: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	r.writePlain("✓ Database ready at %s (%d migrations applied)\n", r.config.Database.Path, len(versions))
	return nil
}

// SetupConfig prints the configuration after file, defaults and environment are merged.
// The session secret is masked.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	cfg := *r.config
	if cfg.Server.SessionSecret != "" {
		cfg.Server.SessionSecret = "********"
	}

	if r.configPath != "" {
		r.writePlain("# %s\n", r.configPath)
	}
	if err := toml.NewEncoder(r.output).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
