package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/domain/types"
	"github.com/secmon-lab/searchlist/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Search holds CLI flags for search timing and grid rendering
type Search struct {
	shortDelay      time.Duration
	longDelay       time.Duration
	pollInterval    time.Duration
	refreshInterval time.Duration
	detailsMarker   string
}

func (x *Search) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "short-search-delay",
			Category:    "Search",
			Usage:       "Quiescence before plain columns are searched",
			Value:       usecase.DefaultShortSearchDelay,
			Sources:     cli.EnvVars("SEARCHLIST_SHORT_SEARCH_DELAY"),
			Destination: &x.shortDelay,
		},
		&cli.DurationFlag{
			Name:        "long-search-delay",
			Category:    "Search",
			Usage:       "Quiescence before relationship data is fetched",
			Value:       usecase.DefaultLongSearchDelay,
			Sources:     cli.EnvVars("SEARCHLIST_LONG_SEARCH_DELAY"),
			Destination: &x.longDelay,
		},
		&cli.DurationFlag{
			Name:        "search-poll-interval",
			Category:    "Search",
			Usage:       "How often outstanding fetches are checked",
			Value:       usecase.DefaultPollInterval,
			Sources:     cli.EnvVars("SEARCHLIST_SEARCH_POLL_INTERVAL"),
			Destination: &x.pollInterval,
		},
		&cli.DurationFlag{
			Name:        "refresh-interval",
			Category:    "Search",
			Usage:       "Interval of the result refresh worker, 0 disables it",
			Value:       time.Minute,
			Sources:     cli.EnvVars("SEARCHLIST_REFRESH_INTERVAL"),
			Destination: &x.refreshInterval,
		},
		&cli.StringFlag{
			Name:        "details-marker",
			Category:    "Search",
			Usage:       "Text of the leading details cell of every row",
			Value:       types.DefaultDetailsText,
			Sources:     cli.EnvVars("SEARCHLIST_DETAILS_MARKER"),
			Destination: &x.detailsMarker,
		},
	}
}

func (x Search) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Duration("short_delay", x.shortDelay),
		slog.Duration("long_delay", x.longDelay),
		slog.Duration("poll_interval", x.pollInterval),
		slog.Duration("refresh_interval", x.refreshInterval),
	)
}

// RefreshInterval returns the worker interval; zero means disabled
func (x *Search) RefreshInterval() time.Duration {
	return x.refreshInterval
}

// Configure returns the use case options for the configured timings
func (x *Search) Configure() ([]usecase.Option, error) {
	for name, d := range map[string]time.Duration{
		"short-search-delay":   x.shortDelay,
		"long-search-delay":    x.longDelay,
		"search-poll-interval": x.pollInterval,
	} {
		if d <= 0 {
			return nil, goerr.Wrap(ErrInvalidDuration, "invalid search timing", goerr.V(FlagKey, name), goerr.V("value", d))
		}
	}
	if x.refreshInterval < 0 {
		return nil, goerr.Wrap(ErrInvalidDuration, "invalid refresh interval", goerr.V(FlagKey, "refresh-interval"))
	}

	return []usecase.Option{
		usecase.WithShortSearchDelay(x.shortDelay),
		usecase.WithLongSearchDelay(x.longDelay),
		usecase.WithPollInterval(x.pollInterval),
		usecase.WithDetailsMarker(x.detailsMarker),
	}, nil
}
