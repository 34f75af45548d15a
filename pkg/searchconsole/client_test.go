package searchconsole

import (
	"context"
	"errors"
	"testing"
	"time"

	"gopkg.in/h2non/gock.v1"

	"seoaudit/test"
)

func TestQuery(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.example.com").
		Post("/searchAnalytics/query").
		MatchHeader("Authorization", "Bearer token123").
		Reply(200).
		JSON(map[string]interface{}{
			"rows": []map[string]interface{}{
				{
					"keys":        []string{"shoes", "https://shop.example.com/shoes", "MOBILE", "deu"},
					"clicks":      10,
					"impressions": 120,
					"ctr":         0.083,
					"position":    3.4,
				},
			},
		})

	client, err := New(Config{BaseURL: "https://api.example.com", Token: "token123"})
	if err != nil {
		t.Fatal(err)
	}

	day := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	docs, err := client.Query(context.Background(), "https://shop.example.com/", day)
	if err != nil {
		t.Fatal(err)
	}

	if len(docs) != 1 {
		t.Fatalf("rows = %d, want 1", len(docs))
	}

	doc := docs[0]

	test.Diff(t, "query dimension", "shoes", doc.String("query"))
	test.Diff(t, "device dimension", "MOBILE", doc.String("device"))

	if clicks, ok := doc["clicks"].(float64); !ok || clicks != 10 {
		t.Errorf("clicks = %v", doc["clicks"])
	}
}

func TestQueryEmptyDay(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.example.com").
		Post("/searchAnalytics/query").
		Reply(200).
		JSON(map[string]interface{}{})

	client, err := New(Config{BaseURL: "https://api.example.com", Token: "token123"})
	if err != nil {
		t.Fatal(err)
	}

	docs, err := client.Query(context.Background(), "https://shop.example.com/", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 0 {
		t.Errorf("rows = %d, want 0", len(docs))
	}
}

// Client errors must not retry: a 403 is permanent, the caller persists a
// retry record on its own schedule instead.
func TestQueryClientError(t *testing.T) {
	defer gock.Off()

	gock.New("https://api.example.com").
		Post("/searchAnalytics/query").
		Reply(403).
		JSON(map[string]string{"error": "forbidden"})

	client, err := New(Config{BaseURL: "https://api.example.com", Token: "token123"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.Query(context.Background(), "https://shop.example.com/", time.Now())

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("got %v, want HTTPError", err)
	}
	if httpErr.StatusCode != 403 {
		t.Errorf("status = %d", httpErr.StatusCode)
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("missing token must be rejected")
	}
}
