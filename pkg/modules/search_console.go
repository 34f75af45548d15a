package modules

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"seoaudit/internal/config"
	"seoaudit/internal/errutil"
	metav1 "seoaudit/pkg/meta/v1"
	"seoaudit/pkg/store"
)

const (
	CollectionSearchConsole      = "google_search_console"
	CollectionSearchConsoleRetry = "google_search_console_retry"

	// Search analytics data trails real time by a few days.
	DefaultDataLagDays = 3

	DefaultImportRetries = 3
)

// SearchAPI is the outbound search analytics client. Query returns all
// performance rows of one property for one day.
type SearchAPI interface {
	Query(ctx context.Context, property string, date time.Time) ([]metav1.Document, error)
}

// SearchConsoleImport pulls daily search analytics per configured property
// into the document store. Days already imported are skipped, failed pulls
// are persisted as retry records and re-attempted on later runs until their
// retry budget runs out.
type SearchConsoleImport struct {
	docs store.Documents
	api  SearchAPI
	cfg  *config.Config

	properties []string
	lagDays    int
	retries    int

	log *log.Entry
}

func NewSearchConsoleImport(deps Dependencies) (Module, error) {
	if deps.Docs == nil {
		return nil, ErrDocumentsRequired
	}
	if deps.SearchAPI == nil {
		return nil, &errutil.ConfigurationMissingError{Key: "modules." + ModuleSearchConsole + ".settings.credentials"}
	}

	module, err := deps.Config.ModuleConfig(ModuleSearchConsole)
	if err != nil {
		return nil, err
	}

	raw, ok := module.Settings["properties"]
	if !ok {
		return nil, &errutil.ConfigurationMissingError{Key: "modules." + ModuleSearchConsole + ".settings.properties"}
	}

	var properties []string

	switch list := raw.(type) {
	case []string:
		properties = list
	case []interface{}:
		for _, p := range list {
			if s, ok := p.(string); ok {
				properties = append(properties, s)
			}
		}
	}

	if len(properties) == 0 {
		return nil, &errutil.ConfigurationInvalidError{
			Key:    "modules." + ModuleSearchConsole + ".settings.properties",
			Reason: "must be a non-empty list of property URLs",
		}
	}

	lagDays, err := settingInt(module.Settings, ModuleSearchConsole, "data_lag_days", DefaultDataLagDays)
	if err != nil {
		return nil, err
	}

	retries, err := settingInt(module.Settings, ModuleSearchConsole, "retries", DefaultImportRetries)
	if err != nil {
		return nil, err
	}

	return &SearchConsoleImport{
		docs: deps.Docs,
		api:  deps.SearchAPI,
		cfg:  deps.Config,

		properties: properties,
		lagDays:    lagDays,
		retries:    retries,

		log: log.WithField("component", ModuleSearchConsole),
	}, nil
}

func (s *SearchConsoleImport) Name() string {
	return ModuleSearchConsole
}

func (s *SearchConsoleImport) Run(ctx context.Context) error {
	var result *multierror.Error

	if err := s.retryPending(ctx); err != nil {
		result = multierror.Append(result, err)
	}

	day := time.Now().UTC().AddDate(0, 0, -s.lagDays)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	for _, property := range s.properties {
		if err := s.importDay(ctx, property, day); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// retryPending re-attempts previously failed pulls. Success and an exhausted
// budget both remove the record; another transient failure decrements it.
func (s *SearchConsoleImport) retryPending(ctx context.Context) error {
	exists, err := s.docs.HasCollection(ctx, CollectionSearchConsoleRetry)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	records, err := s.docs.Find(ctx, CollectionSearchConsoleRetry, metav1.Document{
		"module": ModuleSearchConsole,
	}, &store.FindOptions{Raw: true})
	if err != nil {
		return err
	}

	var result *multierror.Error

	for _, record := range records {
		property := record.String("property")
		day := record.Time("request_date")

		err := s.pull(ctx, property, day)

		switch {
		case err == nil, errors.Is(err, errutil.ErrDataAlreadyExist):
			if err := s.docs.DeleteOne(ctx, CollectionSearchConsoleRetry, record[metav1.FieldID]); err != nil {
				result = multierror.Append(result, err)
			}

		case errors.Is(err, errutil.ErrDataNotAvailableYet):
			s.log.Info(property, " ", day.Format("2006-01-02"), " not available yet")

		default:
			result = multierror.Append(result, err)

			retries, _ := record.Int("retries")
			retries--

			if retries <= 0 {
				s.log.Warn("giving up on ", property, " ", day.Format("2006-01-02"))

				if err := s.docs.DeleteOne(ctx, CollectionSearchConsoleRetry, record[metav1.FieldID]); err != nil {
					result = multierror.Append(result, err)
				}

				continue
			}

			update := metav1.Document{"retries": retries}

			if err := s.docs.UpdateOne(ctx, CollectionSearchConsoleRetry, record[metav1.FieldID], update); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}

	return result.ErrorOrNil()
}

func (s *SearchConsoleImport) importDay(ctx context.Context, property string, day time.Time) error {
	err := s.pull(ctx, property, day)

	switch {
	case err == nil:
		return nil

	case errors.Is(err, errutil.ErrDataAlreadyExist):
		return nil

	case errors.Is(err, errutil.ErrDataNotAvailableYet):
		s.log.Info(property, " ", day.Format("2006-01-02"), " not available yet")
		return nil

	default:
		pending, pendingErr := s.hasRetryRecord(ctx, property, day)
		if pendingErr != nil {
			return multierror.Append(err, pendingErr)
		}
		if pending {
			return err
		}

		record := metav1.RetryRecord{
			Module:      ModuleSearchConsole,
			Property:    property,
			RequestDate: day,
			Retries:     s.retries,
		}

		if insertErr := s.docs.InsertDocument(ctx, CollectionSearchConsoleRetry, retryDocument(record)); insertErr != nil {
			return multierror.Append(err, insertErr)
		}

		return err
	}
}

// pull fetches one property day and stores the rows. ErrDataAlreadyExist
// keeps re-runs idempotent, ErrDataNotAvailableYet signals source lag.
func (s *SearchConsoleImport) pull(ctx context.Context, property string, day time.Time) error {
	exists, err := s.hasData(ctx, property, day)
	if err != nil {
		return err
	}
	if exists {
		s.log.Info(property, " ", day.Format("2006-01-02"), metav1.StatusExists)
		return errutil.ErrDataAlreadyExist
	}

	rows, err := s.api.Query(ctx, property, day)
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		return errutil.ErrDataNotAvailableYet
	}

	docs := make([]metav1.Document, len(rows))

	for i, row := range rows {
		doc := metav1.Document{
			"property":                    property,
			metav1.FieldDate:              day,
			metav1.FieldConfigurationHash: s.cfg.Hash,
		}
		for key, value := range row {
			doc[key] = value
		}
		docs[i] = doc
	}

	if err := s.docs.InsertDocuments(ctx, CollectionSearchConsole, docs); err != nil {
		return err
	}

	s.log.Info(property, " ", day.Format("2006-01-02"), metav1.StatusOK)

	return nil
}

func (s *SearchConsoleImport) hasData(ctx context.Context, property string, day time.Time) (bool, error) {
	exists, err := s.docs.HasCollection(ctx, CollectionSearchConsole)
	if err != nil || !exists {
		return false, err
	}

	_, err = s.docs.FindOne(ctx, CollectionSearchConsole, metav1.Document{
		"property":       property,
		metav1.FieldDate: day,
	}, &store.FindOptions{Raw: true})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNoDocuments):
		return false, nil
	default:
		return false, err
	}
}

func (s *SearchConsoleImport) hasRetryRecord(ctx context.Context, property string, day time.Time) (bool, error) {
	exists, err := s.docs.HasCollection(ctx, CollectionSearchConsoleRetry)
	if err != nil || !exists {
		return false, err
	}

	_, err = s.docs.FindOne(ctx, CollectionSearchConsoleRetry, metav1.Document{
		"module":       ModuleSearchConsole,
		"property":     property,
		"request_date": day,
	}, &store.FindOptions{Raw: true})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNoDocuments):
		return false, nil
	default:
		return false, err
	}
}

func retryDocument(record metav1.RetryRecord) metav1.Document {
	return metav1.Document{
		"module":       record.Module,
		"property":     record.Property,
		"request_date": record.RequestDate,
		"retries":      record.Retries,
	}
}
