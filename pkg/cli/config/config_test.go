package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/searchlist/pkg/cli/config"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

const widgetTOML = `
[[collection]]
name = "people"
preview_order = ["first_name"]

[[collection.columns]]
name = "first_name"
alias = "First Name"
case_sensitive = true

[[collection.columns]]
name = "cats.name"
alias = "Cats"
search_operator = "startsWith"

[[collection]]
name = "cats"
show = false

[[collection.columns]]
name = "name"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	gt.NoError(t, os.WriteFile(path, []byte(content), 0600)).Required()
	return path
}

// runCommand parses args into the flags of a throwaway command and runs fn
func runCommand(t *testing.T, flags []cli.Flag, args []string, fn func(ctx context.Context) error) error {
	t.Helper()
	cmd := &cli.Command{
		Name:  "test",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			return fn(ctx)
		},
	}
	return cmd.Run(context.Background(), append([]string{"test"}, args...))
}

func TestLoadWidget(t *testing.T) {
	path := writeFile(t, "widget.toml", widgetTOML)

	w, err := config.LoadWidget(context.Background(), path)
	gt.NoError(t, err).Required()
	gt.NoError(t, w.Validate())

	gt.Array(t, w.Collections).Length(2)
	people := w.Collections[0]
	gt.Value(t, people.Name).Equal("people")
	gt.Value(t, people.PreviewOrder).Equal([]string{"first_name"})
	gt.Array(t, people.Columns).Length(2)
	gt.Value(t, people.Columns[0].Alias).Equal("First Name")
	gt.Value(t, *people.Columns[0].CaseSensitive).Equal(true)
	gt.Value(t, people.Columns[1].SearchOperator).Equal("startsWith")

	cats := w.Collections[1]
	gt.Value(t, *cats.Show).Equal(false)
	gt.Value(t, cats.Columns[0].Name).Equal("name")
}

func TestLoadWidget_NotFound(t *testing.T) {
	_, err := config.LoadWidget(context.Background(), filepath.Join(t.TempDir(), "missing.toml"))
	gt.Error(t, err).Is(config.ErrConfigNotFound)
}

func TestLoadWidget_InvalidTOML(t *testing.T) {
	path := writeFile(t, "broken.toml", "[[collection]\nname = ")
	_, err := config.LoadWidget(context.Background(), path)
	gt.Value(t, err).NotNil()
}

func TestWidget_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		widget config.Widget
		want   error
	}{
		{
			name:   "no collections",
			widget: config.Widget{},
			want:   model.ErrNoCollections,
		},
		{
			name: "missing column name",
			widget: config.Widget{Collections: []model.CollectionOption{
				{Name: "people", Columns: []model.ColumnOption{{Alias: "Nameless"}}},
			}},
			want: model.ErrMissingColumnName,
		},
		{
			name: "duplicate collection",
			widget: config.Widget{Collections: []model.CollectionOption{
				{Name: "people", Columns: []model.ColumnOption{{Name: "name"}}},
				{Name: "people", Columns: []model.ColumnOption{{Name: "name"}}},
			}},
			want: model.ErrDuplicateCollection,
		},
		{
			name: "unknown preview column",
			widget: config.Widget{Collections: []model.CollectionOption{
				{Name: "people", Columns: []model.ColumnOption{{Name: "name"}}, PreviewOrder: []string{"age"}},
			}},
			want: model.ErrUnknownPreviewColumn,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.widget.Validate()
			gt.Error(t, err).Is(config.ErrInvalidConfig)
			gt.Error(t, err).Is(tc.want)
		})
	}
}

func TestSplitStoragePath(t *testing.T) {
	testCases := []struct {
		path   string
		bucket string
		object string
		valid  bool
	}{
		{path: "gs://configs/widget.toml", bucket: "configs", object: "widget.toml", valid: true},
		{path: "gs://configs/nested/widget.toml", bucket: "configs", object: "nested/widget.toml", valid: true},
		{path: "gs://configs", valid: false},
		{path: "gs:///widget.toml", valid: false},
		{path: "/etc/widget.toml", valid: false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			bucket, object, err := config.SplitStoragePath(tc.path)
			if !tc.valid {
				gt.Error(t, err).Is(config.ErrInvalidStoragePath)
				return
			}
			gt.NoError(t, err).Required()
			gt.Value(t, bucket).Equal(tc.bucket)
			gt.Value(t, object).Equal(tc.object)
		})
	}
}

func TestAppConfig_Configure(t *testing.T) {
	path := writeFile(t, "widget.toml", widgetTOML)

	var appCfg config.AppConfig
	var loaded *config.Widget
	err := runCommand(t, appCfg.Flags(), []string{"--config", path}, func(ctx context.Context) error {
		w, err := appCfg.Configure(ctx)
		loaded = w
		return err
	})
	gt.NoError(t, err).Required()
	gt.Value(t, appCfg.Path()).Equal(path)
	gt.Array(t, loaded.Collections).Length(2)
}
