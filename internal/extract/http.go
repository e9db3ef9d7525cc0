package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const userAgent = "vidscribe/1"

// httpSource fetches a direct media URL and hands the body to the
// transcoder, which drops any video track.
type httpSource struct {
	client *http.Client
}

func newHTTPSource(client *http.Client) Source {
	if client == nil {
		client = &http.Client{}
	}
	return &httpSource{client: client}
}

func (s *httpSource) Name() string {
	return "http"
}

func (s *httpSource) Available() bool {
	return true
}

func (s *httpSource) Accepts(u *url.URL) bool {
	return u != nil && (u.Scheme == "http" || u.Scheme == "https")
}

func (s *httpSource) Stream(ctx context.Context, videoURL string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch video: unexpected status code: %d", resp.StatusCode)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("stream video body: %w", err)
	}
	return nil
}
