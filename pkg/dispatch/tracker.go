package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v3"

	"seoaudit/internal/errutil"
	metav1 "seoaudit/pkg/meta/v1"
)

type TrackerConfig struct {
	Endpoint string
	Token    string
	FolderID string
	Title    string
}

// TrackerSender files one task in an external task tracker per drained
// batch, with the alert lines as the task description. Transient HTTP
// failures retry briefly before the batch is handed back for re-queueing.
type TrackerSender struct {
	cfg  TrackerConfig
	http *http.Client
}

func NewTrackerSender(cfg TrackerConfig) (*TrackerSender, error) {
	if cfg.Endpoint == "" {
		return nil, &errutil.ConfigurationMissingError{Key: "tracker.endpoint"}
	}
	if cfg.FolderID == "" {
		return nil, &errutil.ConfigurationMissingError{Key: "tracker.folderId"}
	}

	return &TrackerSender{
		cfg: cfg,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

type trackerTask struct {
	FolderID    string `json:"folder_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *TrackerSender) Send(ctx context.Context, alerts []metav1.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	payload, err := json.Marshal(trackerTask{
		FolderID:    s.cfg.FolderID,
		Title:       s.cfg.Title,
		Description: FormatAlerts(alerts),
	})
	if err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = time.Minute

	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}

		req.Header.Set("Content-Type", "application/json")

		if s.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
		}

		resp, err := s.http.Do(req)
		if err != nil {
			return err
		}

		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			return &HTTPError{Response: resp}
		}

		return nil
	}, backoff.WithContext(bo, ctx))
}
