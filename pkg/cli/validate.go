package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/cli/config"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdValidate() *cli.Command {
	var appCfg config.AppConfig

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate the widget configuration file strictly",
		Flags:   appCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			widget, err := config.LoadWidget(ctx, appCfg.Path())
			if err != nil {
				return goerr.Wrap(err, "failed to load widget configuration")
			}

			if err := model.ValidateCollections(widget.Collections); err != nil {
				problems := unjoin(err)
				for _, p := range problems {
					logger.Warn("Configuration problem found", "error", p.Error())
				}
				return goerr.Wrap(widget.Validate(), fmt.Sprintf("configuration validation found %d problem(s)", len(problems)))
			}

			logger.Info("Configuration validation passed", "collection_count", len(widget.Collections))
			for _, opt := range widget.Collections {
				cfg := model.NormalizeCollection(ctx, opt)
				logger.Info("Collection validated",
					"name", cfg.Name,
					"column_count", len(cfg.Columns),
					"preview_order", cfg.PreviewOrder,
					"show", cfg.Show,
				)
			}
			return nil
		},
	}
}

// unjoin flattens an errors.Join tree
func unjoin(err error) []error {
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		return []error{err}
	}
	var out []error
	for _, e := range joined.Unwrap() {
		out = append(out, unjoin(e)...)
	}
	return out
}
