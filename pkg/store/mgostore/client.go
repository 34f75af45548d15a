package mgostore

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type client struct {
	dbName string
	client *mongo.Client
}

// NewClient connects and pings with a short bounded timeout so a dead
// server fails the module run immediately instead of hanging.
func NewClient(opts ...*options.ClientOptions) (*client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultConnectTimeout)
	defer cancel()

	var passOpts []*options.ClientOptions

	passOpts = append(passOpts, options.Client().ApplyURI(DefaultMongoAddr))
	for _, o := range opts {
		passOpts = append(passOpts, o)
	}

	c, err := mongo.Connect(ctx, passOpts...)
	if err != nil {
		return nil, err
	}

	if err := c.Ping(ctx, readpref.Primary()); err != nil {
		return nil, err
	}

	return &client{
		client: c,
		dbName: DefaultDatabaseName,
	}, nil
}

func (c *client) SetDatabaseName(dbName string) {
	c.dbName = dbName
}

func (c *client) DB() *mongo.Database {
	return c.client.Database(c.dbName)
}

func (c *client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
