package config

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
	"github.com/secmon-lab/searchlist/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

const gcsScheme = "gs://"

// Widget is the widget configuration file
//
//	[[collection]]
//	name = "people"
//	preview_order = ["first_name"]
//
//	[[collection.columns]]
//	name = "first_name"
//	alias = "First Name"
type Widget struct {
	Collections []model.CollectionOption `toml:"collection"`
}

// Validate checks the configuration strictly and reports every problem
func (w *Widget) Validate() error {
	if err := model.ValidateCollections(w.Collections); err != nil {
		return goerr.Wrap(errors.Join(ErrInvalidConfig, err), "widget configuration is invalid")
	}
	return nil
}

// ParseWidget decodes a widget configuration
func ParseWidget(data []byte) (*Widget, error) {
	var w Widget
	if err := toml.Unmarshal(data, &w); err != nil {
		return nil, goerr.Wrap(err, "failed to parse TOML config")
	}
	return &w, nil
}

// LoadWidget reads the widget configuration from a local path or from
// Cloud Storage when path starts with gs://
func LoadWidget(ctx context.Context, path string) (*Widget, error) {
	var data []byte
	var err error
	if strings.HasPrefix(path, gcsScheme) {
		data, err = readStorageObject(ctx, path)
	} else {
		// #nosec G304 - path is expected to be provided by CLI argument
		data, err = os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, "config file does not exist", goerr.V(ConfigPathKey, path))
		}
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V(ConfigPathKey, path))
	}

	w, err := ParseWidget(data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load widget configuration", goerr.V(ConfigPathKey, path))
	}
	return w, nil
}

// SplitStoragePath splits gs://bucket/object into bucket and object
func SplitStoragePath(path string) (string, string, error) {
	rest, ok := strings.CutPrefix(path, gcsScheme)
	if !ok {
		return "", "", goerr.Wrap(ErrInvalidStoragePath, "path must start with gs://", goerr.V(ConfigPathKey, path))
	}
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", goerr.Wrap(ErrInvalidStoragePath, "path must be gs://bucket/object", goerr.V(ConfigPathKey, path))
	}
	return bucket, object, nil
}

func readStorageObject(ctx context.Context, path string) ([]byte, error) {
	bucket, object, err := SplitStoragePath(path)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create cloud storage client")
	}
	defer safe.Close(ctx, client)

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, goerr.Wrap(ErrConfigNotFound, "config object does not exist",
			goerr.V("bucket", bucket), goerr.V("object", object))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open config object", goerr.V("bucket", bucket), goerr.V("object", object))
	}
	defer safe.Close(ctx, r)

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config object", goerr.V("bucket", bucket), goerr.V("object", object))
	}
	return data, nil
}

// AppConfig holds the CLI flag pointing at the widget configuration
type AppConfig struct {
	path string
}

func (x *AppConfig) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Widget configuration file (local path or gs://bucket/object)",
			Required:    true,
			Sources:     cli.EnvVars("SEARCHLIST_CONFIG"),
			Destination: &x.path,
		},
	}
}

// Path returns the configured location
func (x *AppConfig) Path() string {
	return x.path
}

// Configure loads the widget configuration. Problems are logged and the
// configuration is used as far as possible; call Widget.Validate for a
// strict check.
func (x *AppConfig) Configure(ctx context.Context) (*Widget, error) {
	w, err := LoadWidget(ctx, x.path)
	if err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		logging.From(ctx).Warn("widget configuration has problems", "path", x.path, "error", err.Error())
	}
	logging.From(ctx).Info("Widget configuration loaded", "path", x.path, "collections", len(w.Collections))
	return w, nil
}
