// Package mongo implements core.Driver on top of the official MongoDB driver.
//
// Documents are stored keyed by their mapped column names; the identifier
// column is usually mapped to "_id".
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leandroluk/oxm/core"
	"go.mongodb.org/mongo-driver/bson"
	mongodb "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNoDatabase is returned when neither the schema nor the driver names a
// database.
var ErrNoDatabase = errors.New("mongo: no database name")

// Driver is a core.Driver backed by a MongoDB client.
type Driver struct {
	client          *mongodb.Client
	defaultDatabase string
}

var _ core.Driver = (*Driver)(nil)

// Open connects to uri and verifies the connection. defaultDatabase is used
// for schemas without a database.
func Open(ctx context.Context, uri string, defaultDatabase string) (*Driver, error) {
	opts := options.Client().ApplyURI(uri)
	opts.SetConnectTimeout(10 * time.Second).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongodb.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return &Driver{client: client, defaultDatabase: defaultDatabase}, nil
}

// New wraps an existing client.
func New(client *mongodb.Client, defaultDatabase string) *Driver {
	return &Driver{client: client, defaultDatabase: defaultDatabase}
}

func (d *Driver) collection(schema *core.SchemaCore) (*mongodb.Collection, error) {
	name := d.defaultDatabase
	if schema.Database != "" {
		name = schema.Database
	}
	if name == "" {
		return nil, fmt.Errorf("%w for %s", ErrNoDatabase, schema.Name)
	}
	if schema.Collection == "" {
		return nil, fmt.Errorf("mongo: schema %s has no collection", schema.Name)
	}
	return d.client.Database(name).Collection(schema.Collection), nil
}

// withSession attaches the session of a transaction carried by ctx.
func (d *Driver) withSession(ctx context.Context) context.Context {
	if tx, ok := core.TransactionFrom(ctx).(*transaction); ok {
		return mongodb.NewSessionContext(ctx, tx.session)
	}
	return ctx
}

// Connect validates connectivity.
func (d *Driver) Connect(ctx context.Context) error { return d.client.Ping(ctx, nil) }

// Ping checks that the server is reachable.
func (d *Driver) Ping(ctx context.Context) error { return d.client.Ping(ctx, nil) }

// Close disconnects the client.
func (d *Driver) Close(ctx context.Context) error { return d.client.Disconnect(ctx) }

// Transaction starts a session with an open transaction.
func (d *Driver) Transaction(ctx context.Context) (core.Transaction, error) {
	session, err := d.client.StartSession()
	if err != nil {
		return nil, err
	}
	if err := session.StartTransaction(); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &transaction{session: session}, nil
}

// Insert stores documents keyed by column name.
func (d *Driver) Insert(ctx context.Context, schema *core.SchemaCore, documents ...any) error {
	if len(documents) == 0 {
		return nil
	}
	coll, err := d.collection(schema)
	if err != nil {
		return err
	}
	documentList := make([]any, 0, len(documents))
	for _, doc := range documents {
		documentList = append(documentList, bson.M(core.Snapshot(schema, doc)))
	}
	_, err = coll.InsertMany(d.withSession(ctx), documentList)
	return err
}

func (d *Driver) find(ctx context.Context, schema *core.SchemaCore, query *core.Where, single bool) ([]map[string]any, error) {
	if query == nil {
		query = &core.Where{}
	}
	coll, err := d.collection(schema)
	if err != nil {
		return nil, err
	}
	ctx = d.withSession(ctx)

	findOpts := options.Find()
	if len(query.Sort) > 0 {
		findOpts.SetSort(buildSort(query.Sort))
	}
	if single {
		findOpts.SetLimit(1)
	} else {
		if query.Limit > 0 {
			findOpts.SetLimit(int64(query.Limit))
		}
		if query.Offset > 0 {
			findOpts.SetSkip(int64(query.Offset))
		}
	}

	cursor, err := coll.Find(ctx, buildFilter(query.Condition), findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rowList []map[string]any
	for cursor.Next(ctx) {
		var row bson.M
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		rowList = append(rowList, map[string]any(row))
		if single {
			break
		}
	}
	return rowList, cursor.Err()
}

// FindOne returns the first matching row, or nil.
func (d *Driver) FindOne(ctx context.Context, schema *core.SchemaCore, query *core.Where) (any, error) {
	rowList, err := d.find(ctx, schema, query, true)
	if err != nil {
		return nil, err
	}
	if len(rowList) == 0 {
		return nil, nil
	}
	return rowList[0], nil
}

// FindMany returns every matching row.
func (d *Driver) FindMany(ctx context.Context, schema *core.SchemaCore, query *core.Where) (any, error) {
	return d.find(ctx, schema, query, false)
}

// Update applies changes to every matching document with $set.
func (d *Driver) Update(ctx context.Context, schema *core.SchemaCore, condition *core.Condition, changes core.Changes) error {
	if len(changes) == 0 {
		return nil
	}
	coll, err := d.collection(schema)
	if err != nil {
		return err
	}
	_, err = coll.UpdateMany(d.withSession(ctx), buildFilter(condition), bson.M{"$set": bson.M(changes)})
	return err
}

// Delete removes every matching document.
func (d *Driver) Delete(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) error {
	coll, err := d.collection(schema)
	if err != nil {
		return err
	}
	_, err = coll.DeleteMany(d.withSession(ctx), buildFilter(condition))
	return err
}

// Count returns the number of matching documents.
func (d *Driver) Count(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	coll, err := d.collection(schema)
	if err != nil {
		return 0, err
	}
	return coll.CountDocuments(d.withSession(ctx), buildFilter(condition))
}
