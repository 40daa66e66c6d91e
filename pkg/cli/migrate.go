package cli

import (
	"context"

	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/cli/config"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/repository/firestore"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdMigrate() *cli.Command {
	var appCfg config.AppConfig
	var repoCfg config.Repository
	var dryRun bool

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Preview changes without applying",
			Destination: &dryRun,
		},
	}
	flags = append(flags, appCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Migrate Firestore indexes for the searchable columns of the widget",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			if repoCfg.ProjectID() == "" {
				return goerr.Wrap(config.ErrMissingFlag, "firestore-project-id is required",
					goerr.V(config.FlagKey, "firestore-project-id"))
			}

			widget, err := appCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to load widget configuration")
			}

			logger.Info("Migrate configuration",
				"projectID", repoCfg.ProjectID(),
				"databaseID", repoCfg.DatabaseID(),
				"prefix", repoCfg.CollectionPrefix(),
				"dryRun", dryRun)

			indexConfig := getIndexConfig(ctx, repoCfg.CollectionPrefix(), widget.Collections)

			client, err := fireconf.NewClient(ctx, repoCfg.ProjectID(), repoCfg.DatabaseID())
			if err != nil {
				return goerr.Wrap(err, "failed to create fireconf client")
			}
			defer func() {
				if err := client.Close(); err != nil {
					logger.Error("failed to close fireconf client", "error", err.Error())
				}
			}()

			if dryRun {
				logger.Info("Dry run mode - previewing changes")
				plan, err := client.GetMigrationPlan(ctx, indexConfig)
				if err != nil {
					return goerr.Wrap(err, "failed to create migration plan")
				}

				if len(plan.Steps) == 0 {
					logger.Info("No changes required")
					return nil
				}

				for _, step := range plan.Steps {
					logger.Info("Migration step",
						"collection", step.Collection,
						"operation", step.Operation,
						"description", step.Description,
						"destructive", step.Destructive)
				}
				return nil
			}

			logger.Info("Applying migrations")
			if err := client.Migrate(ctx, indexConfig); err != nil {
				return goerr.Wrap(err, "failed to apply migrations")
			}
			logger.Info("Migrations applied successfully")
			return nil
		},
	}
}

// getIndexConfig returns one composite index per plain searchable column:
// the prefix range on the lower cased search value, newest first
func getIndexConfig(ctx context.Context, prefix string, opts []model.CollectionOption) *fireconf.Config {
	cfg := &fireconf.Config{}
	for _, opt := range opts {
		collection := model.NormalizeCollection(ctx, opt)

		var indexes []fireconf.Index
		for _, col := range collection.Columns {
			if !col.Searchable || col.IsRelationship() || col.Name == "" {
				continue
			}
			indexes = append(indexes, fireconf.Index{
				Fields: []fireconf.IndexField{
					{Path: firestore.SearchField + "." + col.Name, Order: fireconf.OrderAscending},
					{Path: firestore.UpdatedAtField, Order: fireconf.OrderDescending},
				},
			})
		}
		if len(indexes) == 0 {
			continue
		}

		cfg.Collections = append(cfg.Collections, fireconf.Collection{
			Name:    firestore.EntitiesCollection(prefix, collection.Name),
			Indexes: indexes,
		})
	}
	return cfg
}
