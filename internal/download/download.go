// Package download saves finished video artifacts to a local directory.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jimeng-relay/storyvideo/internal/orchestrator"
	"github.com/jimeng-relay/storyvideo/internal/storyboard"
)

var defaultHTTPClient = &http.Client{Timeout: 5 * time.Minute}

type Options struct {
	Dir       string
	Overwrite bool
	// HTTPClient defaults to a client with a five minute timeout.
	HTTPClient *http.Client
	// Header is added to every download request, e.g. an API key header for
	// Gemini file URIs.
	Header http.Header
	Logger *slog.Logger
}

// Saver implements orchestrator.Observer. Only video artifacts are fetched;
// storyboard data URIs are skipped.
type Saver struct {
	opts Options

	mu    sync.Mutex
	files map[string]string
}

var _ orchestrator.Observer = (*Saver)(nil)

func NewSaver(opts Options) *Saver {
	if opts.HTTPClient == nil {
		opts.HTTPClient = defaultHTTPClient
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Saver{opts: opts, files: make(map[string]string)}
}

func (s *Saver) AttemptFinished(context.Context, orchestrator.AttemptReport) {}

func (s *Saver) JobFinished(ctx context.Context, outcome orchestrator.Outcome) {
	if outcome.Err != nil || outcome.Result.Kind != orchestrator.ArtifactVideo {
		return
	}
	uri := outcome.Result.ArtifactURI
	if storyboard.IsStoryboardURI(uri) {
		return
	}
	filePath, err := s.Save(ctx, outcome.JobID, uri)
	if err != nil {
		s.opts.Logger.ErrorContext(ctx, "failed to download video", "error", err)
		return
	}
	s.opts.Logger.InfoContext(ctx, "video downloaded", "path", filePath)
}

// File returns the local path saved for jobID, if any.
func (s *Saver) File(jobID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.files[jobID]
	return p, ok
}

// Save streams videoURL into <dir>/<job>-<name>. Without Overwrite an
// existing file is an error.
func (s *Saver) Save(ctx context.Context, jobID, videoURL string) (string, error) {
	dir := strings.TrimSpace(s.opts.Dir)
	if dir == "" {
		return "", fmt.Errorf("download dir is required")
	}
	if videoURL == "" {
		return "", fmt.Errorf("video url is empty")
	}

	u, err := url.Parse(videoURL)
	if err != nil {
		return "", fmt.Errorf("parse video url failed: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported video url scheme: %s", u.Scheme)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir failed: %w", err)
	}

	filePath := filepath.Join(dir, fileName(jobID, u))
	flags := os.O_CREATE | os.O_WRONLY
	if s.opts.Overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}

	output, err := os.OpenFile(filePath, flags, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("file already exists: %s (use --overwrite to replace)", filePath)
		}
		return "", fmt.Errorf("open output file failed: %w", err)
	}
	keep := false
	defer func() {
		_ = output.Close()
		if !keep {
			_ = os.Remove(filePath)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return "", fmt.Errorf("create download request failed: %w", err)
	}
	for k, vs := range s.opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("download failed: status=%d (URL might be expired or invalid)", resp.StatusCode)
		}
		return "", fmt.Errorf("download request returned status=%d", resp.StatusCode)
	}

	if _, err := io.Copy(output, resp.Body); err != nil {
		return "", fmt.Errorf("write video content failed: %w", err)
	}
	if err := output.Sync(); err != nil {
		return "", fmt.Errorf("sync video file failed: %w", err)
	}
	keep = true

	s.mu.Lock()
	s.files[jobID] = filePath
	s.mu.Unlock()
	return filePath, nil
}

func fileName(jobID string, u *url.URL) string {
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" || base == ":download" {
		base = "video.mp4"
	}
	base = sanitize(base, "video.mp4")
	if path.Ext(base) == "" {
		base += ".mp4"
	}
	return fmt.Sprintf("%s-%s", sanitize(jobID, "job"), base)
}

func sanitize(s, fallback string) string {
	key := strings.TrimSpace(s)
	if key == "" {
		return fallback
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '-'
		}
	}, key)
}
