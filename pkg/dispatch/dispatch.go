package dispatch

import (
	"context"
	"fmt"
	"strings"

	metav1 "seoaudit/pkg/meta/v1"
)

// Sender delivers a drained batch of alerts through one outbound channel.
// A non-nil error means the whole batch must be re-queued by the caller.
type Sender interface {
	Send(ctx context.Context, alerts []metav1.Alert) error
}

// FormatAlert renders one alert as a log line: "[date] message | data".
func FormatAlert(alert metav1.Alert) string {
	line := "[" + alert.Date.Format("2006-01-02T15:04:05Z07:00") + "] " + alert.Message

	if len(alert.Data) > 0 {
		line += " | " + fmt.Sprint(alert.Data)
	}

	return line
}

// FormatAlerts renders a batch, one line per alert.
func FormatAlerts(alerts []metav1.Alert) string {
	lines := make([]string, len(alerts))
	for i, alert := range alerts {
		lines[i] = FormatAlert(alert)
	}

	return strings.Join(lines, "\n")
}
