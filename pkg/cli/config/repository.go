package config

import (
	"context"
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/domain/interfaces"
	"github.com/secmon-lab/searchlist/pkg/repository/firestore"
	"github.com/secmon-lab/searchlist/pkg/repository/jsonapi"
	"github.com/secmon-lab/searchlist/pkg/repository/memory"
	"github.com/secmon-lab/searchlist/pkg/repository/sqlite"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
	"github.com/secmon-lab/searchlist/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

// Repository backends
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
	BackendJSONAPI   = "jsonapi"
)

// Repository holds CLI flags for repository backend configuration
type Repository struct {
	backend          string
	seed             string
	sqlitePath       string
	projectID        string
	databaseID       string
	collectionPrefix string
	jsonapiURL       string
	jsonapiToken     string
}

// Flags returns CLI flags for repository configuration
func (r *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository-backend",
			Category:    "Repository",
			Usage:       "Repository backend type (memory, sqlite, firestore or jsonapi)",
			Value:       BackendMemory,
			Sources:     cli.EnvVars("SEARCHLIST_REPOSITORY_BACKEND"),
			Destination: &r.backend,
		},
		&cli.StringFlag{
			Name:        "seed",
			Category:    "Repository",
			Usage:       "TOML fixture of entities stored at startup",
			Sources:     cli.EnvVars("SEARCHLIST_SEED"),
			Destination: &r.seed,
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Category:    "Repository",
			Usage:       "SQLite database file (sqlite backend)",
			Value:       "searchlist.db",
			Sources:     cli.EnvVars("SEARCHLIST_SQLITE_PATH"),
			Destination: &r.sqlitePath,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Category:    "Repository",
			Usage:       "Firestore Project ID (required when using firestore backend)",
			Sources:     cli.EnvVars("SEARCHLIST_FIRESTORE_PROJECT_ID"),
			Destination: &r.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Category:    "Repository",
			Usage:       "Firestore Database ID",
			Sources:     cli.EnvVars("SEARCHLIST_FIRESTORE_DATABASE_ID"),
			Destination: &r.databaseID,
		},
		&cli.StringFlag{
			Name:        "firestore-collection-prefix",
			Category:    "Repository",
			Usage:       "Prefix of Firestore collection names",
			Sources:     cli.EnvVars("SEARCHLIST_FIRESTORE_COLLECTION_PREFIX"),
			Destination: &r.collectionPrefix,
		},
		&cli.StringFlag{
			Name:        "jsonapi-url",
			Category:    "Repository",
			Usage:       "Base URL of the JSON:API server (required when using jsonapi backend)",
			Sources:     cli.EnvVars("SEARCHLIST_JSONAPI_URL"),
			Destination: &r.jsonapiURL,
		},
		&cli.StringFlag{
			Name:        "jsonapi-token",
			Category:    "Repository",
			Usage:       "Bearer token sent to the JSON:API server",
			Sources:     cli.EnvVars("SEARCHLIST_JSONAPI_TOKEN"),
			Destination: &r.jsonapiToken,
		},
	}
}

func (r Repository) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", r.backend),
		slog.String("seed", r.seed),
		slog.String("sqlite_path", r.sqlitePath),
		slog.String("firestore_project_id", r.projectID),
		slog.String("firestore_database_id", r.databaseID),
		slog.String("jsonapi_url", r.jsonapiURL),
	)
}

// Backend returns the configured backend type
func (r *Repository) Backend() string {
	return r.backend
}

// ProjectID returns the Firestore project ID
func (r *Repository) ProjectID() string {
	return r.projectID
}

// DatabaseID returns the Firestore database ID
func (r *Repository) DatabaseID() string {
	return r.databaseID
}

// CollectionPrefix returns the Firestore collection prefix
func (r *Repository) CollectionPrefix() string {
	return r.collectionPrefix
}

// Configure initializes and returns an entity store based on the configured
// backend and stores the seed fixture into it. The caller is responsible for
// calling Close() on the returned store.
func (r *Repository) Configure(ctx context.Context) (interfaces.EntityStore, error) {
	store, err := r.open(ctx)
	if err != nil {
		return nil, err
	}

	if r.seed != "" {
		if err := loadSeed(ctx, store, r.seed); err != nil {
			safe.Close(ctx, store)
			return nil, err
		}
	}
	return store, nil
}

func (r *Repository) open(ctx context.Context) (interfaces.EntityStore, error) {
	logger := logging.From(ctx)

	switch r.backend {
	case BackendMemory:
		logger.Info("Using in-memory repository (development mode)")
		return memory.New(), nil

	case BackendSQLite:
		store, err := sqlite.New(ctx, r.sqlitePath)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize sqlite repository")
		}
		logger.Info("Using SQLite repository", "path", r.sqlitePath)
		return store, nil

	case BackendFirestore:
		if r.projectID == "" {
			return nil, goerr.Wrap(ErrMissingFlag, "firestore-project-id is required when using firestore backend",
				goerr.V(FlagKey, "firestore-project-id"))
		}
		store, err := firestore.New(ctx, r.projectID, r.databaseID, firestore.WithCollectionPrefix(r.collectionPrefix))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore repository")
		}
		logger.Info("Using Firestore repository",
			"project_id", r.projectID,
			"database_id", r.databaseID,
		)
		return store, nil

	case BackendJSONAPI:
		if r.jsonapiURL == "" {
			return nil, goerr.Wrap(ErrMissingFlag, "jsonapi-url is required when using jsonapi backend",
				goerr.V(FlagKey, "jsonapi-url"))
		}
		var opts []jsonapi.Option
		if r.jsonapiToken != "" {
			opts = append(opts, jsonapi.WithToken(r.jsonapiToken))
		}
		store, err := jsonapi.New(r.jsonapiURL, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize jsonapi repository")
		}
		logger.Info("Using JSON:API repository", "url", r.jsonapiURL)
		return store, nil

	default:
		return nil, goerr.Wrap(ErrInvalidBackend, "invalid repository backend", goerr.V(BackendKey, r.backend))
	}
}

func loadSeed(ctx context.Context, store interfaces.EntityStore, path string) error {
	// #nosec G304 - path is provided by CLI flag
	f, err := os.Open(path)
	if err != nil {
		return goerr.Wrap(err, "failed to open seed file", goerr.V("path", path))
	}
	defer safe.Close(ctx, f)

	seed, err := memory.ParseSeed(f)
	if err != nil {
		return goerr.Wrap(err, "failed to parse seed file", goerr.V("path", path))
	}
	entities, err := seed.ToEntities()
	if err != nil {
		return goerr.Wrap(err, "invalid seed file", goerr.V("path", path))
	}

	for _, e := range entities {
		if _, err := store.Put(ctx, e); err != nil {
			return goerr.Wrap(err, "failed to store seed entity", goerr.V("type", e.Type), goerr.V("id", e.ID))
		}
	}
	logging.From(ctx).Info("Seed entities stored", "path", path, "count", len(entities))
	return nil
}
