// Package omnivore saves articles through the Omnivore GraphQL API.
package omnivore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/readlater-migrate/internal/graphql"
	"github.com/JakeFAU/readlater-migrate/internal/migrate"
)

// DefaultEndpoint is the production Omnivore GraphQL endpoint.
const DefaultEndpoint = "https://api-prod.omnivore.app/api/graphql"

const savePageMutation = `
  mutation SavePage($input: SavePageInput!) {
    savePage(input: $input) {
      __typename
      ... on SaveSuccess {
        url
        clientRequestId
      }
      ... on SaveError {
        errorCodes
        message
      }
    }
  }
`

// Config holds Omnivore credentials.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Client implements migrate.Destination.
type Client struct {
	gql    *graphql.Client
	logger *zap.Logger
}

// New creates an Omnivore client. hc may be nil.
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
	return &Client{
		gql: graphql.New(endpoint,
			graphql.WithName("omnivore"),
			graphql.WithHTTPClient(hc),
			graphql.WithHeader("Authorization", cfg.APIKey),
			graphql.WithLogger(logger),
		),
		logger: logger,
	}
}

// savePageInput is the wire shape of SavePageInput. Labels must be omitted,
// not sent empty, when there are none.
type savePageInput struct {
	URL             string          `json:"url"`
	ClientRequestID string          `json:"clientRequestId"`
	Title           string          `json:"title,omitempty"`
	OriginalContent string          `json:"originalContent,omitempty"`
	SavedAt         string          `json:"savedAt,omitempty"`
	PublishedAt     string          `json:"publishedAt,omitempty"`
	Labels          []migrate.Label `json:"labels,omitempty"`
	Source          string          `json:"source,omitempty"`
	State           string          `json:"state,omitempty"`
}

type savePageResponse struct {
	SavePage *struct {
		Typename        string   `json:"__typename"`
		URL             string   `json:"url"`
		ClientRequestID string   `json:"clientRequestId"`
		ErrorCodes      []string `json:"errorCodes"`
		Message         string   `json:"message"`
	} `json:"savePage"`
}

// SavePage implements migrate.Destination.
func (c *Client) SavePage(ctx context.Context, p migrate.Payload) (migrate.SaveResult, error) {
	req := graphql.Request{
		Query:         savePageMutation,
		OperationName: "SavePage",
		Variables:     map[string]any{"input": inputFor(p)},
	}

	var resp savePageResponse
	if err := c.gql.Do(ctx, req, &resp); err != nil {
		return migrate.SaveResult{}, classify(ctx, err)
	}
	if resp.SavePage == nil {
		return migrate.SaveResult{}, &migrate.TransientError{Op: "save page", Err: errors.New("empty savePage result")}
	}

	out := resp.SavePage
	if out.Typename == "SaveError" || len(out.ErrorCodes) > 0 {
		return migrate.SaveResult{}, &migrate.ValidationError{Codes: out.ErrorCodes, Message: out.Message}
	}
	return migrate.SaveResult{URL: out.URL, ClientRequestID: out.ClientRequestID}, nil
}

func inputFor(p migrate.Payload) savePageInput {
	in := savePageInput{
		URL:             p.URL,
		ClientRequestID: p.ClientRequestID,
		Title:           p.Title,
		OriginalContent: p.Content,
		Source:          p.Source,
		State:           string(p.State),
	}
	if len(p.Labels) > 0 {
		in.Labels = p.Labels
	}
	if !p.SavedAt.IsZero() {
		in.SavedAt = p.SavedAt.UTC().Format(time.RFC3339)
	}
	if p.PublishedAt != nil {
		in.PublishedAt = p.PublishedAt.UTC().Format(time.RFC3339)
	}
	return in
}

// classify maps transport failures onto the write error taxonomy. Credential
// rejections stay plain errors so they are neither retried nor treated as
// bad input.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("save page: %w", err)
	}
	var he *graphql.HTTPError
	isHTTP := errors.As(err, &he)
	switch {
	case graphql.IsRetryable(err):
		te := &migrate.TransientError{Op: "save page", Err: err}
		if isHTTP {
			te.StatusCode = he.StatusCode
			te.RetryAfter = he.RetryAfter
		}
		return te
	case isHTTP && he.Unauthorized():
		return fmt.Errorf("save page: destination rejected credentials: %w", err)
	case isHTTP:
		return &migrate.ValidationError{Codes: []string{fmt.Sprintf("HTTP_%d", he.StatusCode)}, Message: he.Body}
	}
	var re *graphql.ResponseError
	if errors.As(err, &re) {
		return &migrate.ValidationError{Codes: re.Codes(), Message: re.Error()}
	}
	return fmt.Errorf("save page: %w", err)
}
