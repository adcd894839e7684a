package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

var maxDocumentSize = 16 << 20

// Source produces the raw bytes of a feed document.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

type HTTPSource struct {
	URL        string
	Client     *http.Client
	UserAgent  string
	Limiter    *rate.Limiter
	Retries    int
	RetryDelay time.Duration
}

func (s *HTTPSource) String() string {
	return s.URL
}

// Fetch GETs the feed URL. Network errors, 5xx and 429 responses are retried with
// Fibonacci backoff; every other non-2xx response fails at once.
func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	backoff := retry.WithMaxRetries(uint64(max(s.Retries, 0)), retry.NewFibonacci(cmpDuration(s.RetryDelay, 500*time.Millisecond)))

	var data []byte
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		data, err = s.fetchOnce(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *HTTPSource) fetchOnce(ctx context.Context) ([]byte, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, retry.RetryableError(fmt.Errorf("failed to fetch feed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := fmt.Errorf("%w: %s", ErrHTTPStatus, resp.Status)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, retry.RetryableError(statusErr)
		}
		return nil, statusErr
	}

	return readDocument(resp.Body)
}

// readDocument reads at most maxDocumentSize bytes and fails instead of truncating.
func readDocument(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(maxDocumentSize)+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, maxDocumentSize)
	}
	return data, nil
}

func cmpDuration(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

var interpreters = map[string]string{
	".py": "python3",
	".js": "node",
	".rb": "ruby",
	".sh": "sh",
}

// ScriptSource runs a user script from the scripts directory and reads the feed document from
// its stdout. The script gets a minimal environment and its own process group, so a hung or
// crashing script only fails its own feed.
type ScriptSource struct {
	Dir     string
	Script  string
	FeedURL string
}

func (s *ScriptSource) String() string {
	return "script:" + s.Script
}

func (s *ScriptSource) Fetch(ctx context.Context) ([]byte, error) {
	path, err := s.resolve()
	if err != nil {
		return nil, err
	}

	name, args := path, []string{s.FeedURL}
	if interpreter, ok := interpreters[strings.ToLower(filepath.Ext(path))]; ok {
		name, args = interpreter, []string{path, s.FeedURL}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = s.Dir
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + s.Dir,
		"LANG=C.UTF-8",
		"FEED_URL=" + s.FeedURL,
	}
	stdoutBuf := &limitedBuffer{buf: &stdout, remaining: maxDocumentSize}
	cmd.Stdout = stdoutBuf
	cmd.Stderr = &limitedBuffer{buf: &stderr, remaining: 64 << 10}
	cmd.WaitDelay = 2 * time.Second
	isolateProcess(cmd)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrScript, s.Script, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrScript, s.Script, err, strings.TrimSpace(stderr.String()))
	}

	if stdoutBuf.overflowed {
		return nil, fmt.Errorf("%w: %s: %w: over %d bytes", ErrScript, s.Script, ErrTooLarge, maxDocumentSize)
	}

	if len(bytes.TrimSpace(stdout.Bytes())) == 0 {
		return nil, fmt.Errorf("%w: %s produced no output", ErrScript, s.Script)
	}

	return stdout.Bytes(), nil
}

// resolve keeps the script inside Dir whatever the configured path looks like.
func (s *ScriptSource) resolve() (string, error) {
	if s.Dir == "" {
		return "", fmt.Errorf("%w: scripts directory is not configured", ErrScript)
	}

	dir, err := filepath.Abs(s.Dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrScript, err)
	}

	path := filepath.Join(dir, filepath.Clean(string(filepath.Separator)+s.Script))
	if path == dir {
		return "", fmt.Errorf("%w: invalid script path %q", ErrScript, s.Script)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: script %q not found", ErrScript, s.Script)
		}
		return "", fmt.Errorf("%w: %v", ErrScript, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %q is a directory", ErrScript, s.Script)
	}

	return path, nil
}

// limitedBuffer drops writes past its budget but reports them as written so the child
// never blocks on a full pipe. overflowed records that something was dropped.
type limitedBuffer struct {
	buf        *bytes.Buffer
	remaining  int
	overflowed bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > b.remaining {
		b.overflowed = true
		p = p[:max(b.remaining, 0)]
	}
	if len(p) == 0 {
		return n, nil
	}
	b.buf.Write(p)
	b.remaining -= len(p)
	return n, nil
}
