// Package anime is a small AniList GraphQL client used to attach catalogue
// metadata to waves.
package anime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wavely/internal/cache"
	"wavely/internal/models"

	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint = "https://graphql.anilist.co"
	requestTimeout  = 10 * time.Second
	maxPerPage      = 25
)

const mediaFields = `id title { romaji english } coverImage { large } episodes format siteUrl`

const searchQuery = `query ($search: String, $perPage: Int) {
  Page(perPage: $perPage) { media(search: $search, type: ANIME) { ` + mediaFields + ` } }
}`

const getQuery = `query ($id: Int) {
  Media(id: $id, type: ANIME) { ` + mediaFields + ` }
}`

// Client talks to one GraphQL endpoint. Calls are paced by a token bucket
// and never retried.
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a client allowing rps requests per second.
func NewClient(endpoint string, rps float64) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: requestTimeout},
		limiter:  rate.NewLimiter(limit, 1),
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type media struct {
	ID    int `json:"id"`
	Title struct {
		Romaji  string `json:"romaji"`
		English string `json:"english"`
	} `json:"title"`
	CoverImage struct {
		Large string `json:"large"`
	} `json:"coverImage"`
	Episodes int    `json:"episodes"`
	Format   string `json:"format"`
	SiteURL  string `json:"siteUrl"`
}

func (m media) toModel() models.AnimeMetadata {
	title := m.Title.English
	if title == "" {
		title = m.Title.Romaji
	}
	return models.AnimeMetadata{
		ID:         m.ID,
		Title:      title,
		CoverImage: m.CoverImage.Large,
		Episodes:   m.Episodes,
		Format:     m.Format,
		SiteURL:    m.SiteURL,
	}
}

// Search returns up to perPage anime matching query.
func (c *Client) Search(ctx context.Context, query string, perPage int) ([]models.AnimeMetadata, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("Search query is required")
	}
	if perPage <= 0 || perPage > maxPerPage {
		perPage = 10
	}

	var data struct {
		Page struct {
			Media []media `json:"media"`
		} `json:"Page"`
	}
	if err := c.do(ctx, searchQuery, map[string]any{"search": query, "perPage": perPage}, &data); err != nil {
		return nil, err
	}

	out := make([]models.AnimeMetadata, 0, len(data.Page.Media))
	for _, m := range data.Page.Media {
		out = append(out, m.toModel())
	}
	return out, nil
}

// Get returns a single anime by id, consulting the Redis cache first.
func (c *Client) Get(ctx context.Context, id int) (*models.AnimeMetadata, error) {
	if id <= 0 {
		return nil, models.NewValidationError("Invalid anime id")
	}
	var meta models.AnimeMetadata
	err := cache.Aside(ctx, cache.AnimeKey(id), &meta, cache.AnimeTTL, func() error {
		var data struct {
			Media *media `json:"Media"`
		}
		if err := c.do(ctx, getQuery, map[string]any{"id": id}, &data); err != nil {
			return err
		}
		if data.Media == nil {
			return models.NewNotFoundError("Anime", id)
		}
		meta = data.Media.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *Client) do(ctx context.Context, query string, vars map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return models.NewInternalError(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return models.NewInternalError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.NewRemoteWriteError(fmt.Errorf("anime api: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.NewRemoteWriteError(fmt.Errorf("anime api: read body: %w", err))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []gqlError      `json:"errors"`
	}
	decodeErr := json.Unmarshal(raw, &envelope)

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && len(envelope.Errors) > 0 {
			msg = envelope.Errors[0].Message
		}
		return models.NewRemoteWriteError(fmt.Errorf("anime api: status %d: %s", resp.StatusCode, msg))
	}
	if decodeErr != nil {
		return models.NewRemoteWriteError(fmt.Errorf("anime api: decode: %w", decodeErr))
	}
	if len(envelope.Errors) > 0 {
		return models.NewRemoteWriteError(errors.New("anime api: " + envelope.Errors[0].Message))
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return models.NewRemoteWriteError(fmt.Errorf("anime api: decode data: %w", err))
	}
	return nil
}
