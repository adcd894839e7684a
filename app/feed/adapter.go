package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

type AdapterOptions struct {
	HTTPClient *http.Client
	UserAgent  string
	ScriptsDir string
	Limiter    *rate.Limiter
	Retries    int
	RetryDelay time.Duration
}

// Adapter turns a feed's source (URL or script) into a ParsedFeed.
type Adapter struct {
	parser *Parser
	opts   AdapterOptions
}

func NewAdapter(parser *Parser, opts AdapterOptions) *Adapter {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Adapter{parser: parser, opts: opts}
}

// SourceFor selects the fetch variant for a feed: the script when one is configured,
// the URL otherwise.
func (a *Adapter) SourceFor(sourceURL, scriptPath string) (Source, error) {
	switch {
	case SourceKindFor(sourceURL, scriptPath) == SourceScript:
		return &ScriptSource{Dir: a.opts.ScriptsDir, Script: scriptPath, FeedURL: sourceURL}, nil
	case sourceURL != "":
		return &HTTPSource{
			URL:        sourceURL,
			Client:     a.opts.HTTPClient,
			UserAgent:  a.opts.UserAgent,
			Limiter:    a.opts.Limiter,
			Retries:    a.opts.Retries,
			RetryDelay: a.opts.RetryDelay,
		}, nil
	default:
		return nil, ErrNoSource
	}
}

// ParseFeed fetches and parses one feed within timeout. It returns either a complete result
// or an error, never a partial feed.
func (a *Adapter) ParseFeed(ctx context.Context, sourceURL, scriptPath string, timeout time.Duration) (*ParsedFeed, error) {
	source, err := a.SourceFor(sourceURL, scriptPath)
	if err != nil {
		return nil, err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	data, err := source.Fetch(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, err)
		}
		return nil, err
	}

	parsed, err := a.parser.Run(data)
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "Feed parsed",
		"source", source.String(),
		"items", len(parsed.Items),
		"duration", time.Since(start))

	return parsed, nil
}
