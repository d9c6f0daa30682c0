package dataload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/frame"
)

var (
	sheetIDPattern  = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)
	sheetGIDPattern = regexp.MustCompile(`[#&?]gid=(\d+)`)
)

// NewHTTPClient returns a retrying client over a pooled transport. The
// client has no overall timeout; callers bound requests with their context.
func NewHTTPClient(retryMax int, logger zerolog.Logger) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.HTTPClient = cleanhttp.DefaultPooledClient()
	c.RetryMax = retryMax
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.Logger = leveledLogger{logger}
	return c
}

// NormalizeSheetsURL rewrites a Google Sheets document URL to its CSV export
// URL. Other URLs are returned unchanged.
func NormalizeSheetsURL(url string) string {
	if !strings.Contains(url, "docs.google.com/spreadsheets") || strings.Contains(url, "export?format=csv") {
		return url
	}
	m := sheetIDPattern.FindStringSubmatch(url)
	if m == nil {
		return url
	}
	out := "https://docs.google.com/spreadsheets/d/" + m[1] + "/export?format=csv"
	if g := sheetGIDPattern.FindStringSubmatch(url); g != nil {
		out += "&gid=" + g[1]
	}
	return out
}

func (l *Loader) fetchCSV(ctx context.Context, url string) (*frame.Frame, error) {
	data, err := fetchURL(ctx, l.client, NormalizeSheetsURL(url))
	if err != nil {
		return nil, err
	}
	return parseCSV(data, url)
}

func fetchURL(ctx context.Context, client *retryablehttp.Client, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, engine.NewDataSourceError(fmt.Sprintf("invalid URL %s", url), err).
			WithCode(engine.ErrCodeFetchFailed).
			WithPath("data.source")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, engine.NewDataSourceError(fmt.Sprintf("failed to fetch %s", url), err).
			WithCode(engine.ErrCodeFetchFailed).
			WithPath("data.source")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, engine.NewDataSourceError(
			fmt.Sprintf("failed to fetch %s: HTTP %d", url, resp.StatusCode), nil).
			WithCode(engine.ErrCodeFetchFailed).
			WithPath("data.source").
			WithDetail("status", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, engine.NewDataSourceError(fmt.Sprintf("failed to read response from %s", url), err).
			WithCode(engine.ErrCodeFetchFailed).
			WithPath("data.source")
	}
	return data, nil
}

// Fetcher reads a location: an http(s) URL or a file path.
type Fetcher func(ctx context.Context, location string) ([]byte, error)

func (l *Loader) fetcher() Fetcher {
	return NewFetcher(l.fs, l.client)
}

// NewFetcher returns a Fetcher reading URLs with client and paths from fs.
func NewFetcher(fs afero.Fs, client *retryablehttp.Client) Fetcher {
	return func(ctx context.Context, location string) ([]byte, error) {
		if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
			return fetchURL(ctx, client, location)
		}
		data, err := afero.ReadFile(fs, location)
		if err != nil {
			return nil, engine.NewDataSourceError(fmt.Sprintf("failed to read %s", location), err).
				WithCode(engine.ErrCodeFileNotFound)
		}
		return data, nil
	}
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger zerolog.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.event(l.logger.Error(), msg, kv) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.event(l.logger.Debug(), msg, kv) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.event(l.logger.Debug(), msg, kv) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.event(l.logger.Warn(), msg, kv) }

func (l leveledLogger) event(e *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		e = e.Interface(fmt.Sprint(kv[i]), kv[i+1])
	}
	e.Msg(msg)
}
