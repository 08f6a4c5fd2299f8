package ledger

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/shiggityshwah/punchlist/iox"
)

// Resolver turns a provisional queue entry's URL into the form's
// permanent tracking id.
type Resolver interface {
	Resolve(ctx context.Context, url string) (string, error)
}

// HTTPResolver follows the workflow URL's redirect chain and reads the
// permanent id off the final URL's last path segment.
type HTTPResolver struct {
	// Client defaults to http.DefaultClient, whose redirect policy
	// bounds the chain at ten hops.
	Client *http.Client
}

func (r *HTTPResolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("ledger: resolve %s: %w", rawURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger: resolve %s: %w", rawURL, err)
	}
	// Only the final URL matters; drain so the connection is reusable.
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("ledger: resolve %s: status %d", rawURL, resp.StatusCode)
	}
	id := path.Base(resp.Request.URL.Path)
	if id == "" || id == "." || id == "/" {
		return "", fmt.Errorf("ledger: resolve %s: final url %s has no id segment", rawURL, resp.Request.URL)
	}
	return id, nil
}

// ResolveQueue promotes provisional queue ids through r, honoring the
// tracking settings. Resolution is best effort per entry: a failure
// logs, leaves the entry provisional, and moves on. Promotion rewrites
// the id in place and never reorders the queue.
func (l *Ledger) ResolveQueue(ctx context.Context, r Resolver) (int, error) {
	settings, err := l.Settings(ctx)
	if err != nil {
		return 0, err
	}
	if !settings.URLResolution.Enabled {
		return 0, nil
	}
	queue, err := l.Queue(ctx)
	if err != nil {
		return 0, err
	}

	taken := make(map[string]bool, len(queue))
	for _, e := range queue {
		taken[strings.ToLower(e.TrackingID)] = true
	}

	limit := settings.URLResolution.Limit
	attempts, resolved := 0, 0
	for i := range queue {
		if ctx.Err() != nil {
			break
		}
		if !IsTemporaryID(queue[i].TrackingID) || queue[i].URL == "" {
			continue
		}
		if limit > 0 && attempts >= limit {
			break
		}
		attempts++
		id, err := r.Resolve(ctx, queue[i].URL)
		if err != nil {
			l.logger.Warn("id resolution failed", map[string]any{
				"tracking_id": queue[i].TrackingID,
				"error":       err.Error(),
			})
			continue
		}
		if taken[strings.ToLower(id)] {
			l.logger.Warn("resolved id already queued", map[string]any{
				"tracking_id": queue[i].TrackingID,
				"resolved_id": id,
			})
			continue
		}
		delete(taken, strings.ToLower(queue[i].TrackingID))
		taken[strings.ToLower(id)] = true
		l.logger.Info("provisional id promoted", map[string]any{
			"tracking_id": queue[i].TrackingID,
			"resolved_id": id,
		})
		queue[i].TrackingID = id
		resolved++
	}

	if resolved == 0 {
		return 0, nil
	}
	if err := l.writeQueue(ctx, queue); err != nil {
		return resolved, err
	}
	return resolved, nil
}
