package check

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	metav1 "seoaudit/pkg/meta/v1"
)

// Service is the single entry point for recording validation outcomes.
// Every result becomes a new row; nothing is ever updated in place, so
// repeated runs build an append-only audit trail.
//
// Not safe for concurrent use; parallel workers need their own instance.
type Service struct {
	sink Sink
	log  *log.Entry
}

func NewService(sink Sink) *Service {
	return &Service{
		sink: sink,
		log:  log.WithField("component", "check"),
	}
}

func (s *Service) AddCheck(ctx context.Context, urlset, name, value string, valid bool, diff, errText string, url metav1.URL) error {
	result := metav1.CheckResult{
		Created: time.Now().UTC(),
		Check:   name,
		Value:   value,
		Valid:   valid,
		Diff:    diff,
		Error:   errText,
		URL:     url,
	}

	return s.sink.AddCheck(ctx, urlset, result)
}

// Commit flushes buffered results on sinks that batch.
func (s *Service) Commit(ctx context.Context) error {
	return s.sink.Flush(ctx)
}
