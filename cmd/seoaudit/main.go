package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo/options"

	"seoaudit/internal/config"
	"seoaudit/internal/errutil"
	"seoaudit/pkg/alerting"
	"seoaudit/pkg/dispatch"
	"seoaudit/pkg/modules"
	"seoaudit/pkg/pubsub"
	"seoaudit/pkg/searchconsole"
	"seoaudit/pkg/store/mgostore"
	"seoaudit/pkg/store/warehouse"
)

func main() {
	var (
		configPath string
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:   "seoaudit",
		Short: "scheduled aggregation, validation and alerting for marketing data",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "seoaudit.yaml", "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run <module>",
		Short: "run one module to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModule(cmd.Context(), configPath, args[0])
		},
	}

	dispatchCmd := &cobra.Command{
		Use:   "dispatch",
		Short: "drain the alert queue through the configured channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModule(cmd.Context(), configPath, modules.ModuleDispatcher)
		},
	}

	listCmd := &cobra.Command{
		Use:   "modules",
		Short: "list available modules",
		Run: func(cmd *cobra.Command, args []string) {
			names := modules.Names()
			sort.Strings(names)

			for _, name := range names {
				fmt.Println(name)
			}
		},
	}

	rootCmd.AddCommand(runCmd, dispatchCmd, listCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// runModule wires up the configured backends, runs one module to completion
// and tears the connections down again. Nothing survives between runs except
// what the databases hold.
func runModule(ctx context.Context, configPath, name string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	deps := modules.Dependencies{
		Config:    cfg,
		NewSender: newSender,
	}

	if cfg.Databases.MongoDB != nil {
		client, err := mgostore.NewClient(options.Client().ApplyURI(cfg.Databases.MongoDB.URI))
		if err != nil {
			return err
		}

		defer client.Close(ctx)

		if cfg.Databases.MongoDB.DBName != "" {
			client.SetDatabaseName(cfg.Databases.MongoDB.DBName)
		}

		deps.Docs = mgostore.NewStorage(client.DB())
		deps.Alerts = alerting.NewQueue(deps.Docs, alertOptions(cfg)...)
	}

	if cfg.Databases.Warehouse != nil {
		wh := warehouse.New(warehouse.Config{
			DSN:                cfg.Databases.Warehouse.DSN,
			Dataset:            cfg.Databases.Warehouse.Dataset,
			AdditionalDatasets: cfg.Databases.Warehouse.AdditionalDatasets,
		})

		if err := wh.Connect(ctx, cfg.URLSetNames()); err != nil {
			return err
		}

		defer wh.Close()

		deps.Warehouse = wh
	}

	if cfg.Databases.Relational != nil {
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Databases.Relational.DSN)
		if err != nil {
			return err
		}

		defer db.Close()

		deps.Relational = db
	}

	if api, err := searchAPI(cfg); err == nil {
		deps.SearchAPI = api
	} else if name == modules.ModuleSearchConsole {
		return err
	}

	module, err := modules.Resolve(name, deps)
	if err != nil {
		return err
	}

	log.WithField("component", "main").Info("running module: ", name)

	return module.Run(ctx)
}

func alertOptions(cfg *config.Config) []alerting.Option {
	if cfg.Databases.PubSub == nil {
		return nil
	}

	ps, err := pubsub.NewNATS(cfg.Databases.PubSub.URL)
	if err != nil {
		// Queue notifications are best effort, the queue itself is durable.
		log.WithField("component", "main").Warn("pubsub unavailable: ", err)
		return nil
	}

	return []alerting.Option{alerting.WithPubSub(ps)}
}

func searchAPI(cfg *config.Config) (modules.SearchAPI, error) {
	module, err := cfg.ModuleConfig(modules.ModuleSearchConsole)
	if err != nil {
		return nil, err
	}

	token, _ := module.Settings["token"].(string)
	baseURL, _ := module.Settings["api_url"].(string)

	return searchconsole.New(searchconsole.Config{
		BaseURL: baseURL,
		Token:   token,
	})
}

// newSender builds one dispatch channel from its configuration block.
func newSender(kind string, settings map[string]interface{}) (dispatch.Sender, error) {
	switch kind {
	case "email":
		var to []string

		switch raw := settings["to"].(type) {
		case []string:
			to = raw
		case []interface{}:
			for _, a := range raw {
				if s, ok := a.(string); ok {
					to = append(to, s)
				}
			}
		}

		port, _ := settings["port"].(int)
		if port == 0 {
			if f, ok := settings["port"].(float64); ok {
				port = int(f)
			}
		}

		host, _ := settings["host"].(string)
		user, _ := settings["user"].(string)
		password, _ := settings["password"].(string)
		from, _ := settings["from"].(string)
		subject, _ := settings["subject"].(string)

		return dispatch.NewEmailSender(dispatch.SMTPConfig{
			Host:     host,
			Port:     port,
			User:     user,
			Password: password,
			From:     from,
			To:       to,
			Subject:  subject,
		})

	case "tracker":
		endpoint, _ := settings["endpoint"].(string)
		token, _ := settings["token"].(string)
		folderID, _ := settings["folder_id"].(string)
		title, _ := settings["title"].(string)

		return dispatch.NewTrackerSender(dispatch.TrackerConfig{
			Endpoint: endpoint,
			Token:    token,
			FolderID: folderID,
			Title:    title,
		})

	default:
		return nil, &errutil.ConfigurationInvalidError{
			Key:    "dispatchers.type",
			Reason: "unsupported channel " + kind,
		}
	}
}
