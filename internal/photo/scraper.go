// Package photo finds an aircraft picture by scraping a photo-description page.
// The page layout is not an API and can change without notice.
package photo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"flight-map-dashboard/pkg/logger"
)

var ErrNoPhoto = errors.New("no photo found")

const maxPageBytes = 4 << 20

type Scraper struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

func NewScraper(baseURL string, timeout time.Duration, log *logger.Logger) *Scraper {
	if log == nil {
		log = logger.Discard()
	}
	return &Scraper{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// PhotoURL returns an absolute image URL for the airframe, or ErrNoPhoto.
func (s *Scraper) PhotoURL(ctx context.Context, icao24 string) (string, error) {
	icao24 = strings.ToLower(strings.TrimSpace(icao24))
	if icao24 == "" {
		return "", ErrNoPhoto
	}

	pageURL, err := url.Parse(s.baseURL + "/" + url.PathEscape(icao24))
	if err != nil {
		return "", fmt.Errorf("bad photo page url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch photo page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNoPhoto
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("photo page returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to parse photo page: %w", err)
	}

	src := ogImage(doc)
	if src == "" {
		src = photoImg(doc, false)
	}
	if src == "" {
		s.logger.Debug("No photo on %s", pageURL)
		return "", ErrNoPhoto
	}

	ref, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("%w: bad image url %q", ErrNoPhoto, src)
	}
	return pageURL.ResolveReference(ref).String(), nil
}

// ogImage returns the content of <meta property="og:image">.
func ogImage(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "meta" && attr(n, "property") == "og:image" {
		return strings.TrimSpace(attr(n, "content"))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if v := ogImage(c); v != "" {
			return v
		}
	}
	return ""
}

// photoImg returns the first <img src> nested in an element whose class mentions "photo".
func photoImg(n *html.Node, inPhoto bool) string {
	if n.Type == html.ElementNode {
		if inPhoto && n.Data == "img" {
			if src := strings.TrimSpace(attr(n, "src")); src != "" {
				return src
			}
		}
		if strings.Contains(strings.ToLower(attr(n, "class")), "photo") {
			inPhoto = true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if v := photoImg(c, inPhoto); v != "" {
			return v
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
