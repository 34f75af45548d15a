package modules

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"seoaudit/internal/config"
	"seoaudit/internal/errutil"
	"seoaudit/pkg/alerting"
	"seoaudit/pkg/check"
	metav1 "seoaudit/pkg/meta/v1"
	"seoaudit/pkg/store/warehouse"
)

// alertQuery is one configured alert condition: a SQL template run against
// the warehouse, raising one alert per matching row and interested group.
type alertQuery struct {
	Name    string
	Groups  []string
	Query   string
	Message string

	// Negate inverts the alert condition: without per-line checks it
	// raises a single alert when the query matches nothing, for conditions
	// of the kind "expected data is missing"; with per-line checks it
	// alerts on rows whose rules hold instead of rows whose rules fail.
	Negate bool

	Parameters map[string]interface{}

	// ChecksPerLine are comparison rules evaluated against every result
	// row. When set, a row whose rule holds raises alerts, inverted by
	// Negate, instead of alerting from the row count.
	ChecksPerLine []string
}

// AlertingCheck evaluates configured warehouse queries and enqueues alerts
// for their findings. It only reads the warehouse, so it requires the
// warehouse backend.
type AlertingCheck struct {
	wh     *warehouse.Warehouse
	alerts *alerting.Queue

	queries  []alertQuery
	logTable string

	log *log.Entry
}

func NewAlertingCheck(deps Dependencies) (Module, error) {
	module, err := deps.Config.ModuleConfig(ModuleAlertingCheck)
	if err != nil {
		return nil, err
	}

	if module.Database != config.DatabaseWarehouse {
		return nil, &errutil.ConfigurationInvalidError{
			Key:    "modules." + ModuleAlertingCheck + ".database",
			Reason: "alert queries run against the warehouse backend only",
		}
	}

	if deps.Warehouse == nil {
		return nil, &errutil.ConfigurationMissingError{Key: "databases.warehouse"}
	}
	if deps.Alerts == nil {
		return nil, &errutil.ConfigurationMissingError{Key: "databases.mongodb"}
	}

	entries, err := settingSlice(module.Settings, ModuleAlertingCheck, "configurations")
	if err != nil {
		return nil, err
	}

	queries := make([]alertQuery, 0, len(entries))

	for _, entry := range entries {
		query, err := parseAlertQuery(entry)
		if err != nil {
			return nil, err
		}

		queries = append(queries, query)
	}

	logTable, _ := module.Settings["log_table"].(string)

	return &AlertingCheck{
		wh:     deps.Warehouse,
		alerts: deps.Alerts,

		queries:  queries,
		logTable: logTable,

		log: log.WithField("component", ModuleAlertingCheck),
	}, nil
}

func parseAlertQuery(entry map[string]interface{}) (alertQuery, error) {
	kind, _ := entry["type"].(string)
	if kind != "query" {
		return alertQuery{}, &errutil.ConfigurationInvalidError{
			Key:    "modules." + ModuleAlertingCheck + ".settings.configurations",
			Reason: "unsupported configuration type " + kind,
		}
	}

	query := alertQuery{
		Name:       stringOr(entry, "name"),
		Query:      stringOr(entry, "query"),
		Message:    stringOr(entry, "message"),
		Parameters: map[string]interface{}{},
	}

	if query.Name == "" || query.Query == "" || query.Message == "" {
		return alertQuery{}, &errutil.ConfigurationInvalidError{
			Key:    "modules." + ModuleAlertingCheck + ".settings.configurations",
			Reason: "entries need name, query and message",
		}
	}

	query.Negate, _ = entry["negate"].(bool)

	if params, ok := entry["parameters"].(map[string]interface{}); ok {
		query.Parameters = params
	}

	query.ChecksPerLine = stringsOr(entry, "checks_per_line")
	query.Groups = stringsOr(entry, "groups")

	if len(query.Groups) == 0 {
		return alertQuery{}, &errutil.ConfigurationInvalidError{
			Key:    "modules." + ModuleAlertingCheck + ".settings.configurations",
			Reason: "entries need at least one group",
		}
	}

	return query, nil
}

func stringOr(entry map[string]interface{}, key string) string {
	s, _ := entry[key].(string)
	return s
}

func stringsOr(entry map[string]interface{}, key string) []string {
	switch raw := entry[key].(type) {
	case []string:
		return raw
	case []interface{}:
		var values []string
		for _, v := range raw {
			if s, ok := v.(string); ok {
				values = append(values, s)
			}
		}
		return values
	default:
		return nil
	}
}

func (a *AlertingCheck) Name() string {
	return ModuleAlertingCheck
}

func (a *AlertingCheck) Run(ctx context.Context) error {
	var result *multierror.Error

	for _, query := range a.queries {
		count, err := a.evaluate(ctx, query)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}

		a.log.Info("evaluated ", query.Name, ", alerts: ", count)

		if a.logTable != "" {
			if err := a.logRun(ctx, query.Name, count); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}

	return result.ErrorOrNil()
}

func (a *AlertingCheck) evaluate(ctx context.Context, query alertQuery) (int, error) {
	sql, err := check.Interpolate(query.Query, query.Parameters)
	if err != nil {
		return 0, err
	}

	rows, err := a.wh.Query(ctx, sql)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()

	var alerts []metav1.Alert

	if len(query.ChecksPerLine) > 0 {
		alerts, err = lineAlerts(query, rows, now)
	} else {
		alerts, err = countAlerts(query, rows, now)
	}
	if err != nil {
		return 0, err
	}

	if err := a.alerts.AddAlerts(ctx, alerts); err != nil {
		return 0, err
	}

	return len(alerts), nil
}

// lineAlerts evaluates the configured comparison rules against each result
// row. A rule outcome equal to the negate flag stays quiet; the opposite
// outcome raises the row as an alert for every group.
func lineAlerts(query alertQuery, rows []metav1.Document, now time.Time) ([]metav1.Alert, error) {
	var alerts []metav1.Alert

	for _, row := range rows {
		variables := rowVariables(query, row)

		for _, rule := range query.ChecksPerLine {
			holds, err := check.ParseComparison(rule, variables)
			if err != nil {
				return nil, err
			}

			if holds == query.Negate {
				continue
			}

			message, err := check.Interpolate(query.Message, variables)
			if err != nil {
				return nil, err
			}

			data := map[string]interface{}{"check": query.Name}
			for key, value := range variables {
				data[key] = value
			}

			for _, group := range query.Groups {
				alerts = append(alerts, metav1.Alert{
					Date:    now,
					Group:   group,
					Message: message,
					Data:    data,
				})
			}
		}
	}

	return alerts, nil
}

// countAlerts alerts from the result row count: each row raises an alert,
// or with negate set a single alert per group when the query matched
// nothing.
func countAlerts(query alertQuery, rows []metav1.Document, now time.Time) ([]metav1.Alert, error) {
	var alerts []metav1.Alert

	if query.Negate {
		if len(rows) > 0 {
			return nil, nil
		}

		message, err := check.Interpolate(query.Message, query.Parameters)
		if err != nil {
			return nil, err
		}

		for _, group := range query.Groups {
			alerts = append(alerts, metav1.Alert{
				Date:    now,
				Group:   group,
				Message: message,
				Data:    map[string]interface{}{"check": query.Name},
			})
		}

		return alerts, nil
	}

	for _, row := range rows {
		variables := rowVariables(query, row)

		message, err := check.Interpolate(query.Message, variables)
		if err != nil {
			return nil, err
		}

		data := map[string]interface{}{"check": query.Name}
		for key, value := range variables {
			data[key] = value
		}

		for _, group := range query.Groups {
			alerts = append(alerts, metav1.Alert{
				Date:    now,
				Group:   group,
				Message: message,
				Data:    data,
			})
		}
	}

	return alerts, nil
}

// rowVariables merges the query parameters under the normalized row, row
// values winning on key collisions.
func rowVariables(query alertQuery, row metav1.Document) map[string]interface{} {
	variables := normalizeRow(row)

	for key, value := range query.Parameters {
		if _, taken := variables[key]; !taken {
			variables[key] = value
		}
	}

	return variables
}

// normalizeRow flattens driver byte slices to strings so templates and alert
// payloads never carry raw []byte.
func normalizeRow(row metav1.Document) map[string]interface{} {
	variables := make(map[string]interface{}, len(row))

	for key, value := range row {
		if raw, ok := value.([]byte); ok {
			variables[key] = string(raw)
			continue
		}
		variables[key] = value
	}

	return variables
}

func (a *AlertingCheck) logRun(ctx context.Context, name string, alerts int) error {
	ref, err := a.wh.TableReference(a.logTable, "")
	if err != nil {
		return err
	}

	rows := [][]interface{}{{time.Now().UTC(), name, alerts}}

	return a.wh.LoadRows(ctx, ref, []string{"created", "check", "alerts"}, rows, warehouse.LoadOptions{
		Disposition: warehouse.WriteAppend,
	})
}
