package cmd

import (
	"context"
	"fmt"

	"github.com/frahmantamala/orgtree/db/migrations"
	"github.com/frahmantamala/orgtree/internal"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

var (
	migrateCmd = &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Run the embedded SQL migrations (postgres only)",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE:      runMigration,
	}
	migrateRollback bool
)

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "shorthand for `migrate down`")
}

// migrationCommand resolves the goose command from the positional argument
// and the rollback flag.
func migrationCommand(args []string, rollback bool) string {
	switch {
	case len(args) == 1:
		return args[0]
	case rollback:
		return "down"
	default:
		return "up"
	}
}

func runMigration(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.Database.Driver == internal.DriverMongo {
		fmt.Fprintln(cmd.OutOrStdout(), "mongo driver selected; indexes are created when the server starts, nothing to migrate")
		return nil
	}

	db, err := goose.OpenDBWithDriver("pgx", cfg.Database.Source)
	if err != nil {
		return fmt.Errorf("goose: failed to open DB: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetTableName("schema_migrations")

	command := migrationCommand(args, migrateRollback)
	if err := goose.RunContext(ctx, command, db, "."); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}
