package mgostore

import "time"

const (
	DefaultMongoAddr    = "mongodb://localhost:27017"
	DefaultDatabaseName = "seoaudit"

	// Handshake must fail fast rather than hang when the server is down.
	DefaultConnectTimeout = 3 * time.Second
)

// Collection names owned by the engine. Aggregation connectors own their
// per-source collections and pass the names through module configuration.
const (
	DefaultCollectionCrawler       = "crawler"
	DefaultCollectionAlertQueue    = "alert_queue"
	DefaultCollectionConfiguration = "configuration"
)
