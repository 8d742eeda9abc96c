// Package pocket reads the saved-items collection from the Pocket GraphQL API.
package pocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/readlater-migrate/internal/graphql"
	"github.com/JakeFAU/readlater-migrate/internal/migrate"
)

// DefaultEndpoint is the public Pocket GraphQL endpoint.
const DefaultEndpoint = "https://getpocket.com/graphql"

const defaultPageSize = 30

// Config holds Pocket credentials and paging.
type Config struct {
	Endpoint    string
	ConsumerKey string
	Cookie      string
	PageSize    int
	Timeout     time.Duration
}

// Client implements migrate.Source and migrate.ItemSource.
type Client struct {
	gql      *graphql.Client
	pageSize int
	logger   *zap.Logger
}

// New creates a Pocket client. hc may be nil.
func New(cfg Config, hc *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Client{
		gql: graphql.New(endpoint,
			graphql.WithName("pocket"),
			graphql.WithHTTPClient(hc),
			graphql.WithQueryParam("consumer_key", cfg.ConsumerKey),
			graphql.WithQueryParam("enable_cors", "1"),
			graphql.WithHeader("Cookie", cfg.Cookie),
			graphql.WithLogger(logger),
		),
		pageSize: pageSize,
		logger:   logger,
	}
}

type listResponse struct {
	User *struct {
		SavedItems *struct {
			Edges []struct {
				Cursor string    `json:"cursor"`
				Node   savedItem `json:"node"`
			} `json:"edges"`
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			TotalCount int `json:"totalCount"`
		} `json:"savedItems"`
	} `json:"user"`
}

type itemResponse struct {
	User *struct {
		SavedItemByID *savedItem `json:"savedItemById"`
	} `json:"user"`
}

type savedItem struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	CreatedAt  int64  `json:"_createdAt"`
	Status     string `json:"status"`
	IsFavorite bool   `json:"isFavorite"`
	IsArchived bool   `json:"isArchived"`
	Tags       []struct {
		Name string `json:"name"`
	} `json:"tags"`
	Item *struct {
		Title         string `json:"title"`
		ItemID        string `json:"itemId"`
		ResolvedURL   string `json:"resolvedUrl"`
		GivenURL      string `json:"givenUrl"`
		Domain        string `json:"domain"`
		Excerpt       string `json:"excerpt"`
		TopImageURL   string `json:"topImageUrl"`
		DatePublished string `json:"datePublished"`
		Article       string `json:"article"`
		Authors       []struct {
			Name string `json:"name"`
		} `json:"authors"`
	} `json:"item"`
}

// ListSavedItems fetches one page of unread and archived items, newest first.
func (c *Client) ListSavedItems(ctx context.Context, cursor string) (migrate.Page, error) {
	pagination := map[string]any{"first": c.pageSize}
	if cursor != "" {
		pagination["after"] = cursor
	}
	req := graphql.Request{
		Query:         listSavedItemsQuery,
		OperationName: "GetSavedItems",
		Variables: map[string]any{
			"filter":     map[string]any{"statuses": []string{"UNREAD", "ARCHIVED"}},
			"sort":       map[string]any{"sortBy": "CREATED_AT", "sortOrder": "DESC"},
			"pagination": pagination,
		},
	}

	var resp listResponse
	if err := c.gql.Do(ctx, req, &resp); err != nil {
		return migrate.Page{}, classify(ctx, "list saved items", err)
	}
	if resp.User == nil || resp.User.SavedItems == nil {
		return migrate.Page{}, &migrate.FatalFetchError{Op: "list saved items", Err: errors.New("response has no savedItems")}
	}

	items := resp.User.SavedItems
	page := migrate.Page{
		Records: make([]migrate.RawRecord, 0, len(items.Edges)),
		Cursor:  items.PageInfo.EndCursor,
		HasNext: items.PageInfo.HasNextPage,
	}
	for _, edge := range items.Edges {
		page.Records = append(page.Records, edge.Node.toRecord())
	}
	c.logger.Debug("fetched saved items",
		zap.Int("records", len(page.Records)),
		zap.Int("total", items.TotalCount),
		zap.Bool("has_next", page.HasNext),
	)
	return page, nil
}

// GetSavedItem fetches a single saved item by id.
func (c *Client) GetSavedItem(ctx context.Context, id string) (migrate.RawRecord, error) {
	req := graphql.Request{
		Query:         savedItemByIDQuery,
		OperationName: "GetSavedItemById",
		Variables:     map[string]any{"itemId": id},
	}
	var resp itemResponse
	if err := c.gql.Do(ctx, req, &resp); err != nil {
		return migrate.RawRecord{}, classify(ctx, "get saved item", err)
	}
	if resp.User == nil || resp.User.SavedItemByID == nil {
		return migrate.RawRecord{}, &migrate.FatalFetchError{Op: "get saved item", Err: fmt.Errorf("saved item %q not found", id)}
	}
	return resp.User.SavedItemByID.toRecord(), nil
}

func (s savedItem) toRecord() migrate.RawRecord {
	rec := migrate.RawRecord{
		ID:         s.ID,
		URL:        s.URL,
		CreatedAt:  s.CreatedAt,
		IsFavorite: s.IsFavorite,
		IsArchived: s.IsArchived || strings.EqualFold(s.Status, "ARCHIVED"),
	}
	for _, tag := range s.Tags {
		rec.Tags = append(rec.Tags, tag.Name)
	}
	if s.Item == nil {
		return rec
	}
	if s.Item.GivenURL != "" {
		rec.URL = s.Item.GivenURL
	}
	rec.ResolvedURL = s.Item.ResolvedURL
	rec.Title = s.Item.Title
	rec.Content = s.Item.Article
	rec.Published = s.Item.DatePublished
	meta := &migrate.Metadata{
		Excerpt:     s.Item.Excerpt,
		Domain:      s.Item.Domain,
		TopImageURL: s.Item.TopImageURL,
	}
	for _, a := range s.Item.Authors {
		if a.Name != "" {
			meta.Authors = append(meta.Authors, a.Name)
		}
	}
	rec.Meta = meta
	return rec
}

// classify maps transport failures onto the fetch error taxonomy.
func classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if graphql.IsRetryable(err) {
		te := &migrate.TransientError{Op: op, Err: err}
		var he *graphql.HTTPError
		if errors.As(err, &he) {
			te.StatusCode = he.StatusCode
			te.RetryAfter = he.RetryAfter
		}
		return te
	}
	return &migrate.FatalFetchError{Op: op, Err: err}
}
