package modules

import (
	"context"
	"errors"
	"strings"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"seoaudit/internal/config"
	"seoaudit/internal/errutil"
	"seoaudit/pkg/check"
	metav1 "seoaudit/pkg/meta/v1"
	"seoaudit/pkg/store"
	"seoaudit/pkg/store/mgostore"
)

// headerRule is one configured response check: a named comparison template
// evaluated against the status code and response headers of each crawl.
type headerRule struct {
	Name string
	Rule string
}

// ResponseHeader evaluates configured comparison rules against the status
// code and headers of crawled responses. Rules reference response data
// through placeholders: {status_code} plus {header_<name>} per lowercased
// header.
type ResponseHeader struct {
	docs    store.Documents
	cfg     *config.Config
	module  config.Module
	service *check.Service

	rules []headerRule

	log *log.Entry
}

func NewResponseHeader(deps Dependencies) (Module, error) {
	if deps.Docs == nil {
		return nil, ErrDocumentsRequired
	}

	module, err := deps.Config.ModuleConfig(ModuleResponseHeader)
	if err != nil {
		return nil, err
	}

	sink, err := sinkFor(deps, module.Database)
	if err != nil {
		return nil, err
	}

	entries, err := settingSlice(module.Settings, ModuleResponseHeader, "rules")
	if err != nil {
		return nil, err
	}

	rules := make([]headerRule, 0, len(entries))

	for _, entry := range entries {
		name, _ := entry["name"].(string)
		rule, _ := entry["rule"].(string)

		if name == "" || rule == "" {
			return nil, &errutil.ConfigurationInvalidError{
				Key:    "modules." + ModuleResponseHeader + ".settings.rules",
				Reason: "entries need both name and rule",
			}
		}

		rules = append(rules, headerRule{Name: name, Rule: rule})
	}

	return &ResponseHeader{
		docs:    deps.Docs,
		cfg:     deps.Config,
		module:  module,
		service: check.NewService(sink),
		rules:   rules,

		log: log.WithField("component", ModuleResponseHeader),
	}, nil
}

func (r *ResponseHeader) Name() string {
	return ModuleResponseHeader
}

func (r *ResponseHeader) Run(ctx context.Context) error {
	var result *multierror.Error

	for _, name := range r.module.URLSets {
		if err := r.processURLSet(ctx, name); err != nil {
			result = multierror.Append(result, err)
			continue
		}

		if err := r.service.Commit(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

func (r *ResponseHeader) processURLSet(ctx context.Context, urlset string) error {
	filter := metav1.Document{
		metav1.FieldURLSet: urlset,
		metav1.ProcessedMarker(ModuleResponseHeader): metav1.Document{"$exists": false},
	}

	docs, err := r.docs.Find(ctx, mgostore.DefaultCollectionCrawler, filter)
	if err != nil {
		if errors.Is(err, store.ErrCollectionDoesNotExist) {
			return nil
		}
		return err
	}

	for _, doc := range docs {
		if err := r.processDocument(ctx, urlset, doc); err != nil {
			return err
		}

		update := metav1.Document{metav1.ProcessedMarker(ModuleResponseHeader): doc.Time(metav1.FieldDate)}

		if err := r.docs.UpdateOne(ctx, mgostore.DefaultCollectionCrawler, doc[metav1.FieldID], update); err != nil {
			return err
		}
	}

	return nil
}

func (r *ResponseHeader) processDocument(ctx context.Context, urlset string, doc metav1.Document) error {
	url, ok := doc.URL()
	if !ok {
		r.log.Warn("document without url, skipping")
		return nil
	}

	variables := responseVariables(doc)

	for _, rule := range r.rules {
		valid, err := check.ParseComparison(rule.Rule, variables)

		errText := ""

		switch {
		case err == nil:
		case errors.Is(err, check.ErrUnknownField):
			// A header the rule expects is absent from this response. That
			// is a finding about the page, not a configuration mistake.
			valid = false
			errText = err.Error()
		default:
			return err
		}

		if !valid && errText == "" {
			errText = "rule not satisfied: " + rule.Rule
		}

		value, _ := check.Interpolate(rule.Rule, variables)

		if err := r.service.AddCheck(ctx, urlset, rule.Name, value, valid, "", errText, url); err != nil {
			return err
		}
	}

	return nil
}

func responseVariables(doc metav1.Document) map[string]interface{} {
	variables := map[string]interface{}{}

	if code, ok := doc.Int("status_code"); ok {
		variables["status_code"] = code
	}

	if headers, ok := doc["headers"].(map[string]string); ok {
		for name, value := range headers {
			variables[headerVariable(name)] = value
		}
	} else if headers, ok := doc.Map("headers"); ok {
		for name, value := range headers {
			variables[headerVariable(name)] = value
		}
	}

	return variables
}

// headerVariable maps a header name to its placeholder: lowercased, dashes
// as underscores, so content-type becomes {header_content_type}.
func headerVariable(name string) string {
	return "header_" + strings.ReplaceAll(strings.ToLower(name), "-", "_")
}
