package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appconfig "github.com/JakeFAU/readlater-migrate/internal/config"
	"github.com/JakeFAU/readlater-migrate/internal/migrate"
	"github.com/JakeFAU/readlater-migrate/internal/pipeline"
)

type fakeApp struct {
	summary   pipeline.Summary
	runErr    error
	outcome   migrate.Outcome
	importID  string
	migrated  bool
	closed    bool
	reportURI string
}

func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func (f *fakeApp) Migrate(context.Context) (pipeline.Summary, error) {
	f.migrated = true
	return f.summary, f.runErr
}

func (f *fakeApp) ImportOne(_ context.Context, id string) (migrate.Outcome, string, error) {
	f.importID = id
	return f.outcome, f.reportURI, nil
}

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

// useFakeApp swaps the factory and isolates config lookup. Tests that call it
// must not run in parallel.
func useFakeApp(t *testing.T, fake *fakeApp) *appconfig.Config {
	t.Helper()
	{
		dir := t.TempDir()
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(dir))
		t.Cleanup(func() { _ = os.Chdir(wd) })
	}
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MIGRATE_DESTINATION_API_KEY", "key")
	t.Setenv("MIGRATE_SOURCE_COOKIE", "cookie")
	t.Setenv("MIGRATE_SOURCE_CONSUMER_KEY", "consumer")

	var got appconfig.Config
	orig := newApp
	newApp = func(_ context.Context, cfg appconfig.Config) (App, error) {
		got = cfg
		return fake, nil
	}
	t.Cleanup(func() { newApp = orig })
	return &got
}

func execute(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommandPrintsCount(t *testing.T) {
	fake := &fakeApp{summary: pipeline.Summary{Fetched: 3, Succeeded: 2, Failed: 1, ReportURI: "file:///tmp/error_2024-01-01.csv"}}
	cfg := useFakeApp(t, fake)

	out, err := execute("run")
	require.NoError(t, err)
	require.True(t, fake.migrated)
	require.True(t, fake.closed)
	require.Contains(t, out, "Migrated 2 of 3 items (1 failed)")
	require.Contains(t, out, "error_2024-01-01.csv")
	require.Equal(t, "key", cfg.Destination.APIKey)
}

func TestRunCommandExportFileFlag(t *testing.T) {
	fake := &fakeApp{}
	cfg := useFakeApp(t, fake)

	_, err := execute("run", "--export-file", "ril_export.html")
	require.NoError(t, err)
	require.Equal(t, "ril_export.html", cfg.Source.ExportFile)
}

func TestRunCommandAbortStillCloses(t *testing.T) {
	fake := &fakeApp{runErr: pipeline.ErrAborted, summary: pipeline.Summary{RunID: "r1"}}
	useFakeApp(t, fake)

	_, err := execute("run")
	require.ErrorIs(t, err, pipeline.ErrAborted)
	require.True(t, fake.closed)
}

func TestOneCommand(t *testing.T) {
	fake := &fakeApp{outcome: migrate.Outcome{Saved: true, Attempts: 2}}
	useFakeApp(t, fake)

	out, err := execute("one", "--id", "42")
	require.NoError(t, err)
	require.Equal(t, "42", fake.importID)
	require.Contains(t, out, "Saved item 42 after 2 attempt(s)")
}

func TestOneCommandReportsRejection(t *testing.T) {
	fake := &fakeApp{
		outcome:   migrate.Outcome{Err: errors.New("rejected")},
		reportURI: "file:///tmp/error_2024-01-01.csv",
	}
	useFakeApp(t, fake)

	out, err := execute("one", "--id", "7")
	require.NoError(t, err)
	require.Contains(t, out, "Item 7 was not saved: rejected")
	require.Contains(t, out, "Failure report")
}

func TestOneCommandRequiresID(t *testing.T) {
	useFakeApp(t, &fakeApp{})

	_, err := execute("one")
	require.Error(t, err)
}

func TestInvalidConfigFailsBeforeBuild(t *testing.T) {
	fake := &fakeApp{}
	useFakeApp(t, fake)
	t.Setenv("MIGRATE_DESTINATION_API_KEY", "")

	_, err := execute("run")
	require.ErrorContains(t, err, "invalid config")
	require.False(t, fake.migrated)
}
