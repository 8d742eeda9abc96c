package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/readlater-migrate/internal/store"
)

type fakeRepo struct {
	runs       []store.Run
	sites      []store.SiteStats
	err        error
	lastStatus *store.RunStatus
	lastLimit  int
	lastOffset int
}

func (f *fakeRepo) UpsertRunStart(context.Context, uuid.UUID, time.Time) error { return nil }

func (f *fakeRepo) CompleteRun(context.Context, uuid.UUID, time.Time, store.RunStatus, *string) error {
	return nil
}

func (f *fakeRepo) UpsertSiteStats(context.Context, uuid.UUID, string, store.SiteDelta, time.Time) error {
	return nil
}

func (f *fakeRepo) GetRun(_ context.Context, id uuid.UUID) (store.Run, error) {
	if f.err != nil {
		return store.Run{}, f.err
	}
	for _, r := range f.runs {
		if r.RunID == id {
			return r, nil
		}
	}
	return store.Run{}, store.ErrNotFound
}

func (f *fakeRepo) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	f.lastStatus, f.lastLimit, f.lastOffset = status, limit, offset
	return f.runs, f.err
}

func (f *fakeRepo) ListRunSites(_ context.Context, _ uuid.UUID, limit, offset int) ([]store.SiteStats, error) {
	f.lastLimit, f.lastOffset = limit, offset
	return f.sites, f.err
}

func TestListRunsFiltersByStatus(t *testing.T) {
	t.Parallel()

	finished := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
	repo := &fakeRepo{runs: []store.Run{{
		RunID:      uuid.New(),
		StartedAt:  finished.Add(-time.Hour),
		FinishedAt: &finished,
		Status:     store.RunDone,
	}}}
	h := NewServer(nil, repo, nil).Handler()

	rec := do(t, h, "/v1/runs?status=DONE&limit=5000&offset=2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, repo.lastStatus)
	require.Equal(t, store.RunDone, *repo.lastStatus)
	require.Equal(t, maxRunLimit, repo.lastLimit)
	require.Equal(t, 2, repo.lastOffset)

	var body struct {
		Runs []runDTO `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	require.Equal(t, "done", body.Runs[0].Status)
}

func TestListRunsRejectsBadQuery(t *testing.T) {
	t.Parallel()

	h := NewServer(nil, &fakeRepo{}, nil).Handler()
	require.Equal(t, http.StatusBadRequest, do(t, h, "/v1/runs?status=paused").Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, "/v1/runs?limit=0").Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, "/v1/runs?offset=-1").Code)
}

func TestRunRoutesWithoutRepo(t *testing.T) {
	t.Parallel()

	h := NewServer(nil, nil, nil).Handler()
	require.Equal(t, http.StatusServiceUnavailable, do(t, h, "/v1/runs").Code)
	require.Equal(t, http.StatusServiceUnavailable, do(t, h, "/v1/runs/"+uuid.NewString()).Code)
	require.Equal(t, http.StatusServiceUnavailable, do(t, h, "/v1/runs/"+uuid.NewString()+"/sites").Code)
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	msg := "fetch failed"
	repo := &fakeRepo{runs: []store.Run{{RunID: id, Status: store.RunAborted, ErrorMessage: &msg}}}
	h := NewServer(nil, repo, nil).Handler()

	rec := do(t, h, "/v1/runs/"+id.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Run runDTO `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, id.String(), body.Run.RunID)
	require.NotNil(t, body.Run.Error)
	require.Equal(t, msg, *body.Run.Error)

	require.Equal(t, http.StatusNotFound, do(t, h, "/v1/runs/"+uuid.NewString()).Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, "/v1/runs/not-a-uuid").Code)
}

func TestGetRunRepoError(t *testing.T) {
	t.Parallel()

	h := NewServer(nil, &fakeRepo{err: errors.New("db down")}, nil).Handler()
	require.Equal(t, http.StatusInternalServerError, do(t, h, "/v1/runs/"+uuid.NewString()).Code)
}

func TestListRunSites(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	repo := &fakeRepo{sites: []store.SiteStats{{RunID: id, Site: "example.com", Saved: 4, Failed: 1, Attempts: 6}}}
	h := NewServer(nil, repo, nil).Handler()

	rec := do(t, h, "/v1/runs/"+id.String()+"/sites")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, defaultSitesLimit, repo.lastLimit)

	var body struct {
		Sites []siteDTO `json:"sites"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sites, 1)
	require.Equal(t, int64(4), body.Sites[0].Saved)
	require.Equal(t, int64(6), body.Sites[0].Attempts)
}
