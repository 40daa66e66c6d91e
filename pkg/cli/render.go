package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/cli/config"
	"github.com/secmon-lab/searchlist/pkg/collection"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/domain/types"
	"github.com/secmon-lab/searchlist/pkg/service/entitycache"
	"github.com/secmon-lab/searchlist/pkg/usecase"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
	"github.com/secmon-lab/searchlist/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

// Output formats of the render command
const (
	formatLight    = "light"
	formatMarkdown = "markdown"
	formatCSV      = "csv"
	formatJSON     = "json"
)

var errInvalidFormat = goerr.New("invalid output format")

func cmdRender() *cli.Command {
	var search string
	var expand string
	var format string
	var output string
	var appCfg config.AppConfig
	var repoCfg config.Repository
	var searchCfg config.Search

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "search",
			Aliases:     []string{"q"},
			Usage:       "Search string",
			Destination: &search,
		},
		&cli.StringFlag{
			Name:        "expand",
			Usage:       "Record to expand on the ALL page, as type/id",
			Destination: &expand,
		},
		&cli.StringFlag{
			Name:        "format",
			Aliases:     []string{"f"},
			Usage:       "Output format (light, markdown, csv, json)",
			Value:       formatLight,
			Destination: &format,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Output file, - for stdout",
			Value:       "-",
			Destination: &output,
		},
	}
	flags = append(flags, appCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, searchCfg.Flags()...)

	return &cli.Command{
		Name:    "render",
		Aliases: []string{"r"},
		Usage:   "Run a search once and print the grid of every visible collection",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			switch format {
			case formatLight, formatMarkdown, formatCSV, formatJSON:
			default:
				return goerr.Wrap(errInvalidFormat, "unknown format", goerr.V("format", format))
			}

			widget, err := appCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to load widget configuration")
			}

			store, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer safe.Close(ctx, store)

			ucOpts, err := searchCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "invalid search configuration")
			}

			cache := entitycache.New(store)
			registry := collection.NewRegistry(ctx, widget.Collections, cache)
			uc := usecase.New(registry, cache, ucOpts...)

			if err := runSearch(ctx, uc, search); err != nil {
				return err
			}

			if expand != "" {
				typ, id, ok := strings.Cut(expand, "/")
				if !ok || typ == "" || id == "" {
					return goerr.New("expand must be type/id", goerr.V("expand", expand))
				}
				if err := uc.View.OpenCard(ctx, types.AllPage, typ, id); err != nil {
					return goerr.Wrap(err, "failed to expand record", goerr.V("expand", expand))
				}
			}

			w := io.Writer(os.Stdout)
			if output != "-" {
				// #nosec G304 - path is provided by CLI flag
				f, err := os.Create(output)
				if err != nil {
					return goerr.Wrap(err, "failed to create output file", goerr.V("path", output))
				}
				defer safe.Close(ctx, f)
				w = f
			}

			return renderPage(ctx, w, uc, format)
		},
	}
}

// runSearch runs both search phases right away instead of waiting for the
// debounce timers
func runSearch(ctx context.Context, uc *usecase.UseCases, search string) error {
	uc.Search.SetSearch(ctx, search)
	uc.Search.Cancel()
	uc.Search.RunShortSearch(ctx)
	if err := uc.Search.RunLongSearch(ctx); err != nil {
		return goerr.Wrap(err, "search failed", goerr.V("search", search))
	}
	logging.From(ctx).Debug("search completed", "search", search, "session_id", uc.Search.SessionID())
	return nil
}

func renderPage(ctx context.Context, w io.Writer, uc *usecase.UseCases, format string) error {
	var grids []*model.GridView
	for _, c := range uc.Registry().Visible() {
		grid, err := uc.View.Grid(ctx, types.AllPage, c.Name())
		if err != nil {
			return err
		}
		grids = append(grids, grid)
	}

	if format == formatJSON {
		cards, err := uc.View.Overlays(ctx, types.AllPage)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Search string            `json:"search"`
			Grids  []*model.GridView `json:"grids"`
			Cards  []*model.CardView `json:"cards"`
		}{
			Search: uc.Search.Search(),
			Grids:  grids,
			Cards:  cards,
		})
	}

	for _, grid := range grids {
		renderGrid(w, grid, format)
	}

	cards, err := uc.View.Overlays(ctx, types.AllPage)
	if err != nil {
		return err
	}
	for _, card := range cards {
		renderCard(w, card, format)
	}
	return nil
}

// renderGrid prints the top and bottom tables as one table. The expanded
// row is highlighted and followed by a separator.
func renderGrid(w io.Writer, grid *model.GridView, format string) {
	highlight := color.New(color.FgYellow, color.Bold).SprintFunc()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(grid.Collection)
	t.AppendHeader(toRow(grid.Headers, nil))

	for i, row := range grid.Tables.Top {
		if i == grid.Tables.ExpandedRow {
			t.AppendRow(toRow(row, highlight))
			if len(grid.Tables.Bottom) > 0 {
				t.AppendSeparator()
			}
			continue
		}
		t.AppendRow(toRow(row, nil))
	}
	for _, row := range grid.Tables.Bottom {
		t.AppendRow(toRow(row, nil))
	}

	switch format {
	case formatMarkdown:
		t.RenderMarkdown()
	case formatCSV:
		t.RenderCSV()
	default:
		t.Render()
	}
	_, _ = fmt.Fprintln(w)
}

func renderCard(w io.Writer, card *model.CardView, format string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(card.Type + "/" + card.ID)
	t.AppendHeader(table.Row{"Field", "Value"})
	for _, f := range card.Fields {
		t.AppendRow(table.Row{f.Alias, f.Value})
	}

	switch format {
	case formatMarkdown:
		t.RenderMarkdown()
	case formatCSV:
		t.RenderCSV()
	default:
		t.Render()
	}
	_, _ = fmt.Fprintln(w)
}

func toRow(cells []string, decorate func(a ...any) string) table.Row {
	row := make(table.Row, len(cells))
	for i, cell := range cells {
		if decorate != nil {
			row[i] = decorate(cell)
			continue
		}
		row[i] = cell
	}
	return row
}
