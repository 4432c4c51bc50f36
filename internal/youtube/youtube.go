// Package youtube looks up video metadata through the YouTube Data API
// v3. The extension uses the result for its keyword and creator
// whitelist checks; responses are cached per video ID.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/focusmunk/focusmunkd/internal/metrics"
)

const defaultBaseURL = "https://www.googleapis.com/youtube/v3/videos"

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("youtube: API key not configured")

	// ErrInvalidURL is returned when no video ID can be extracted.
	ErrInvalidURL = errors.New("youtube: could not parse video ID from URL")

	// ErrVideoNotFound is returned when the API knows no such video.
	ErrVideoNotFound = errors.New("youtube: video not found")

	// ErrUpstream is returned on YouTube API failures.
	ErrUpstream = errors.New("youtube: upstream API error")
)

// VideoInfo is the metadata surfaced to the extension.
type VideoInfo struct {
	Title      string `json:"title"`
	AuthorName string `json:"authorName"`
	AuthorURL  string `json:"authorUrl"`
}

// Client fetches and caches video metadata.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	cache   *lru.Cache[string, *VideoInfo]
	logger  zerolog.Logger
}

// NewClient creates a lookup client. The API key may be empty; lookups
// then fail with ErrNotConfigured.
func NewClient(apiKey string, cacheSize int, timeout time.Duration, logger zerolog.Logger) (*Client, error) {
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	cache, err := lru.New[string, *VideoInfo](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create video cache: %w", err)
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: timeout},
		cache:   cache,
		logger:  logger.With().Str("component", "youtube").Logger(),
	}, nil
}

// ExtractVideoID pulls the video ID out of a watch URL. Both the
// "watch?v=" and the "youtu.be/" short form are accepted.
func ExtractVideoID(rawURL string) (string, error) {
	if _, rest, ok := strings.Cut(rawURL, "v="); ok {
		id, _, _ := strings.Cut(rest, "&")
		if id != "" {
			return id, nil
		}
	}
	if _, rest, ok := strings.Cut(rawURL, "youtu.be/"); ok {
		id, _, _ := strings.Cut(rest, "?")
		if id != "" {
			return id, nil
		}
	}
	return "", ErrInvalidURL
}

// Lookup returns metadata for the video in the given watch URL, serving
// repeated lookups from the cache.
func (c *Client) Lookup(ctx context.Context, rawURL string) (*VideoInfo, error) {
	videoID, err := ExtractVideoID(rawURL)
	if err != nil {
		return nil, err
	}
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	if info, ok := c.cache.Get(videoID); ok {
		metrics.YouTubeLookups.WithLabelValues("hit").Inc()
		return info, nil
	}

	info, err := c.fetch(ctx, videoID)
	if err != nil {
		metrics.YouTubeLookups.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.YouTubeLookups.WithLabelValues("miss").Inc()
	c.cache.Add(videoID, info)
	return info, nil
}

// apiResponse mirrors the fields we need from the videos.list response.
type apiResponse struct {
	Items []struct {
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
			ChannelID    string `json:"channelId"`
		} `json:"snippet"`
	} `json:"items"`
}

func (c *Client) fetch(ctx context.Context, videoID string) (*VideoInfo, error) {
	query := url.Values{}
	query.Set("id", videoID)
	query.Set("key", c.apiKey)
	query.Set("part", "snippet")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Str("video_id", videoID).Msg("YouTube API request failed")
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if len(parsed.Items) == 0 {
		return nil, ErrVideoNotFound
	}

	snippet := parsed.Items[0].Snippet
	return &VideoInfo{
		Title:      snippet.Title,
		AuthorName: snippet.ChannelTitle,
		AuthorURL:  "https://www.youtube.com/channel/" + snippet.ChannelID,
	}, nil
}
