package mgostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	metav1 "seoaudit/pkg/meta/v1"
	"seoaudit/pkg/store"
)

type mgo struct {
	db *mongo.Database
}

func NewStorage(db *mongo.Database) store.Documents {
	return &mgo{db: db}
}

func (m *mgo) HasCollection(ctx context.Context, collection string) (bool, error) {
	names, err := m.db.ListCollectionNames(ctx, bson.M{"name": collection})
	if err != nil {
		return false, err
	}

	return len(names) > 0, nil
}

func (m *mgo) collection(ctx context.Context, name string, autoCreate bool) (*mongo.Collection, error) {
	if !autoCreate {
		has, err := m.HasCollection(ctx, name)
		if err != nil {
			return nil, err
		}
		if !has {
			return nil, store.ErrCollectionDoesNotExist
		}
	}

	return m.db.Collection(name), nil
}

func (m *mgo) InsertDocument(ctx context.Context, collection string, doc metav1.Document, opts ...*store.InsertOptions) error {
	opt := store.MergeInsertOptions(opts)

	coll, err := m.collection(ctx, collection, opt.AutoCreate)
	if err != nil {
		return err
	}

	_, err = coll.InsertOne(ctx, doc)
	return err
}

func (m *mgo) InsertDocuments(ctx context.Context, collection string, docs []metav1.Document, opts ...*store.InsertOptions) error {
	opt := store.MergeInsertOptions(opts)

	coll, err := m.collection(ctx, collection, opt.AutoCreate)
	if err != nil {
		return err
	}

	documents := make([]interface{}, len(docs))
	for i, doc := range docs {
		documents[i] = doc
	}

	_, err = coll.InsertMany(ctx, documents)
	return err
}

func (m *mgo) Find(ctx context.Context, collection string, filter metav1.Document, opts ...*store.FindOptions) ([]metav1.Document, error) {
	cursor, err := m.FindCursor(ctx, collection, filter, opts...)
	if err != nil {
		return nil, err
	}

	defer cursor.Close(ctx)

	var docs []metav1.Document

	for cursor.Next(ctx) {
		var doc metav1.Document

		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

func (m *mgo) FindCursor(ctx context.Context, collection string, filter metav1.Document, opts ...*store.FindOptions) (store.Cursor, error) {
	opt := store.MergeFindOptions(opts)

	coll, err := m.collection(ctx, collection, false)
	if err != nil {
		return nil, err
	}

	findOpts := options.Find()

	if opt.Offset > 0 {
		findOpts.SetSkip(opt.Offset)
	}

	if opt.Limit > 0 {
		findOpts.SetLimit(opt.Limit)
	}

	cursor, err := coll.Find(ctx, bson.M(filter), findOpts)
	if err != nil {
		return nil, err
	}

	return &mgoCursor{cursor: cursor, raw: opt.Raw}, nil
}

func (m *mgo) FindOne(ctx context.Context, collection string, filter metav1.Document, opts ...*store.FindOptions) (metav1.Document, error) {
	opt := store.MergeFindOptions(opts)

	coll, err := m.collection(ctx, collection, false)
	if err != nil {
		return nil, err
	}

	var doc metav1.Document

	if err := coll.FindOne(ctx, bson.M(filter)).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, store.ErrNoDocuments
		}
		return nil, err
	}

	if !opt.Raw {
		initURL(doc)
	}

	return doc, nil
}

func (m *mgo) FindLastSorted(ctx context.Context, collection string, filter metav1.Document, sort store.Sort) (metav1.Document, error) {
	coll, err := m.collection(ctx, collection, false)
	if err != nil {
		return nil, err
	}

	order := 1
	if sort.Descending {
		order = -1
	}

	findOpts := options.FindOne().SetSort(bson.D{{Key: sort.Field, Value: order}})

	var doc metav1.Document

	if err := coll.FindOne(ctx, bson.M(filter), findOpts).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, store.ErrNoDocuments
		}
		return nil, err
	}

	initURL(doc)

	return doc, nil
}

func (m *mgo) UpdateOne(ctx context.Context, collection string, id interface{}, update metav1.Document) error {
	coll, err := m.collection(ctx, collection, false)
	if err != nil {
		return err
	}

	result, err := coll.UpdateOne(ctx, bson.M{metav1.FieldID: id}, bson.M{"$set": bson.M(update)})
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return store.ErrNoDocuments
	}

	return nil
}

func (m *mgo) DeleteOne(ctx context.Context, collection string, id interface{}) error {
	coll, err := m.collection(ctx, collection, false)
	if err != nil {
		return err
	}

	result, err := coll.DeleteOne(ctx, bson.M{metav1.FieldID: id})
	if err != nil {
		return err
	}

	if result.DeletedCount == 0 {
		return store.ErrNoDocuments
	}

	return nil
}

type mgoCursor struct {
	cursor *mongo.Cursor
	raw    bool
}

func (c *mgoCursor) Next(ctx context.Context) bool {
	return c.cursor.Next(ctx)
}

func (c *mgoCursor) Decode(doc *metav1.Document) error {
	if err := c.cursor.Decode(doc); err != nil {
		return err
	}

	if !c.raw {
		initURL(*doc)
	}

	return nil
}

func (c *mgoCursor) Close(ctx context.Context) error {
	return c.cursor.Close(ctx)
}

// initURL replaces a nested url subdocument with the URL value type, the
// non-raw read mode of the contract.
func initURL(doc metav1.Document) {
	if doc == nil {
		return
	}

	if url, ok := doc.URL(); ok {
		doc[metav1.FieldURL] = url
	}
}
