package download

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/jimeng-relay/storyvideo/internal/orchestrator"
	"github.com/jimeng-relay/storyvideo/internal/storyboard"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSaver_JobFinishedDownloadsVideo(t *testing.T) {
	t.Parallel()

	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		_, _ = w.Write([]byte("mp4-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	s := NewSaver(Options{Dir: dir, Header: http.Header{"x-goog-api-key": {"k"}}, Logger: quietLogger()})
	s.JobFinished(context.Background(), orchestrator.Outcome{
		JobID:  "job_1",
		Result: orchestrator.Result{Kind: orchestrator.ArtifactVideo, ArtifactURI: srv.URL + "/files/cat.mp4"},
	})

	p, ok := s.File("job_1")
	require.True(t, ok)
	require.Equal(t, filepath.Join(dir, "job_1-cat.mp4"), p)
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Equal(t, "mp4-bytes", string(b))
	require.Equal(t, "k", gotKey)
}

func TestSaver_SkipsStoryboardAndFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewSaver(Options{Dir: dir, Logger: quietLogger()})

	s.JobFinished(context.Background(), orchestrator.Outcome{
		JobID:  "job_sb",
		Result: orchestrator.Result{Kind: orchestrator.ArtifactStoryboard, ArtifactURI: storyboard.URIPrefix + "e30="},
	})
	s.JobFinished(context.Background(), orchestrator.Outcome{JobID: "job_err", Err: context.Canceled})

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSaver_SaveRefusesToOverwrite(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("v2"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	existing := filepath.Join(dir, "job_1-video.mp4")
	require.NoError(t, os.WriteFile(existing, []byte("v1"), 0o644))

	s := NewSaver(Options{Dir: dir, Logger: quietLogger()})
	_, err := s.Save(context.Background(), "job_1", srv.URL+"/video.mp4")
	require.ErrorContains(t, err, "already exists")
	b, _ := os.ReadFile(existing)
	require.Equal(t, "v1", string(b))

	s = NewSaver(Options{Dir: dir, Overwrite: true, Logger: quietLogger()})
	p, err := s.Save(context.Background(), "job_1", srv.URL+"/video.mp4")
	require.NoError(t, err)
	b, _ = os.ReadFile(p)
	require.Equal(t, "v2", string(b))
}

func TestSaver_SaveErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	dir := t.TempDir()
	s := NewSaver(Options{Dir: dir, Logger: quietLogger()})

	_, err := s.Save(context.Background(), "job_1", srv.URL+"/gone.mp4")
	require.ErrorContains(t, err, "expired")
	_, statErr := os.Stat(filepath.Join(dir, "job_1-gone.mp4"))
	require.True(t, os.IsNotExist(statErr), "partial file is removed")

	_, err = s.Save(context.Background(), "job_1", "ftp://example.com/a.mp4")
	require.ErrorContains(t, err, "unsupported video url scheme")

	_, err = NewSaver(Options{}).Save(context.Background(), "job_1", srv.URL)
	require.ErrorContains(t, err, "download dir is required")
}

func TestFileName(t *testing.T) {
	t.Parallel()

	u, _ := url.Parse("https://generativelanguage.googleapis.com/v1beta/files/abc:download?alt=media")
	require.Equal(t, "job_1-abc-download.mp4", fileName("job_1", u))

	u, _ = url.Parse("https://example.com/")
	require.Equal(t, "job-video.mp4", fileName("", u))
}
