package feeds

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"
)

const userAgent = "disaster-intel/1.0 (+https://github.com/relief-net/disaster-intel)"

// newHTTPClient returns the client adapters share. Per-request deadlines come
// from the caller's context; the client timeout is a backstop.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// getJSON fetches a URL and decodes the JSON response into v.
func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	body, err := get(ctx, client, url, "application/json")
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// getXML fetches a URL and decodes the XML response into v.
func getXML(ctx context.Context, client *http.Client, url string, v any) error {
	body, err := get(ctx, client, url, "application/xml")
	if err != nil {
		return err
	}
	defer body.Close()
	if err := xml.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decoding feed: %w", err)
	}
	return nil
}

func get(ctx context.Context, client *http.Client, url, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("upstream returned %s", resp.Status)
	}
	return resp.Body, nil
}

// clampWindow bounds a fetch window to the range an upstream allows.
func clampWindow(days, min, max int) int {
	if days < min {
		return min
	}
	if days > max {
		return max
	}
	return days
}

// parseFlexibleTime accepts the timestamp formats the upstreams emit.
func parseFlexibleTime(value string) (time.Time, bool) {
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
	} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
