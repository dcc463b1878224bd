package socket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Gorillas-Team/Gorilink/internal/audio"
	"github.com/Gorillas-Team/Gorilink/internal/telemetry"
)

var ErrFetchFailed = errors.New("track fetch failed")

const tracerName = "github.com/Gorillas-Team/Gorilink/internal/socket"

// LoadTracks resolves identifier (a URL or a "<source>search:" query) through the
// node's HTTP API.
func (n *Node) LoadTracks(ctx context.Context, identifier string) (*audio.SearchResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "socket.LoadTracks",
		attribute.String("node", n.Name()),
		attribute.String("identifier", identifier),
	)
	defer span.End()

	start := time.Now()
	res, status, err := n.loadTracks(ctx, identifier)
	telemetry.ObserveFetch(time.Since(start), status, err != nil)

	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("load_type", string(res.LoadType)),
		attribute.Int("tracks", len(res.Tracks)),
	)
	telemetry.SetSpanSuccess(span)
	return res, nil
}

func (n *Node) loadTracks(ctx context.Context, identifier string) (*audio.SearchResponse, int, error) {
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrFetchFailed, err)
		}
	}

	endpoint := n.opts.restURL("/loadtracks") + "?identifier=" + url.QueryEscape(identifier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	req.Header.Set("Authorization", n.opts.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: reading body: %w", ErrFetchFailed, err)
	}

	if resp.StatusCode/100 != 2 {
		return nil, resp.StatusCode, fmt.Errorf("%w: node %s returned %s", ErrFetchFailed, n.Name(), resp.Status)
	}

	res, err := audio.ParseSearchResponse(body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	return res, resp.StatusCode, nil
}
