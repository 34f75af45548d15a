// Package searchconsole is a thin client for the search analytics query
// endpoint. It exposes one call: all performance rows of a property for one
// day, flattened into schemaless documents.
package searchconsole

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v3"

	"seoaudit/internal/errutil"
	metav1 "seoaudit/pkg/meta/v1"
)

const DefaultBaseURL = "https://www.googleapis.com/webmasters/v3"

var dimensions = []string{"query", "page", "device", "country"}

type Config struct {
	BaseURL string
	Token   string
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, &errutil.ConfigurationMissingError{Key: "search_console.token"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

type queryRequest struct {
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	Dimensions []string `json:"dimensions"`
	RowLimit   int      `json:"rowLimit"`
	StartRow   int      `json:"startRow"`
}

type queryResponse struct {
	Rows []struct {
		Keys        []string `json:"keys"`
		Clicks      float64  `json:"clicks"`
		Impressions float64  `json:"impressions"`
		CTR         float64  `json:"ctr"`
		Position    float64  `json:"position"`
	} `json:"rows"`
}

// Query pages through all performance rows of one property day.
func (c *Client) Query(ctx context.Context, property string, date time.Time) ([]metav1.Document, error) {
	const pageSize = 25000

	day := date.Format("2006-01-02")
	endpoint := c.cfg.BaseURL + "/sites/" + url.PathEscape(property) + "/searchAnalytics/query"

	var docs []metav1.Document

	for startRow := 0; ; startRow += pageSize {
		payload, err := json.Marshal(queryRequest{
			StartDate:  day,
			EndDate:    day,
			Dimensions: dimensions,
			RowLimit:   pageSize,
			StartRow:   startRow,
		})
		if err != nil {
			return nil, err
		}

		var page queryResponse

		if err := c.post(ctx, endpoint, payload, &page); err != nil {
			return nil, err
		}

		for _, row := range page.Rows {
			doc := metav1.Document{
				"clicks":      row.Clicks,
				"impressions": row.Impressions,
				"ctr":         row.CTR,
				"position":    row.Position,
			}

			for i, dimension := range dimensions {
				if i < len(row.Keys) {
					doc[dimension] = row.Keys[i]
				}
			}

			docs = append(docs, doc)
		}

		if len(page.Rows) < pageSize {
			break
		}
	}

	return docs, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload []byte, out interface{}) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = time.Minute

	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}

		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return &HTTPError{Response: resp}
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return backoff.Permanent(&HTTPError{Response: resp})
		}

		return json.NewDecoder(resp.Body).Decode(out)
	}, backoff.WithContext(bo, ctx))
}
