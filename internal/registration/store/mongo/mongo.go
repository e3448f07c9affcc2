// Package mongo stores registrations in a MongoDB collection, one document per
// normalized team name (_id). Commits run in multi-document session
// transactions, which require a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.mongodb.org/mongo-driver/x/mongo/driver"

	"outbreak/internal/registration/models"
	"outbreak/internal/registration/store"
	dErrors "outbreak/pkg/domain-errors"
	"outbreak/pkg/platform/sentinel"
)

const transactionIDIndex = "payment_transaction_id_unique"

// Mongo error codes treated as transient or quota failures.
const (
	codeWriteConflict        = 112
	codeExceededTimeLimit    = 262
	codeTooManyConnections   = 13663
	codeOperationQuotaFailed = 8000
)

var fieldPaths = map[models.Field]string{
	models.FieldTeamName:      "teamName",
	models.FieldTransactionID: "payment.transactionId",
	models.FieldLeaderRegNo:   "teamLeader.regNo",
}

// MongoStore persists registrations in MongoDB.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongo constructs a store over database.registrations.
func NewMongo(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(store.Collection),
	}
}

// EnsureIndexes creates the unique transaction id index and lookup indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "payment.transactionId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(transactionIDIndex),
		},
		{
			Keys:    bson.D{{Key: "teamName", Value: 1}},
			Options: options.Index().SetName("team_name"),
		},
		{
			Keys:    bson.D{{Key: "teamLeader.regNo", Value: 1}},
			Options: options.Index().SetName("team_leader_reg_no"),
		},
		{
			Keys:    bson.D{{Key: "submittedAt", Value: -1}},
			Options: options.Index().SetName("submitted_at"),
		},
	})
	if err != nil {
		return fmt.Errorf("ensure registration indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByKey(ctx context.Context, key string) (*models.Registration, error) {
	var reg models.Registration
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&reg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, sentinel.ErrNotFound
		}
		return nil, classify(err, "find registration by key")
	}
	return &reg, nil
}

func (s *MongoStore) ExistsByField(ctx context.Context, field models.Field, value string) (bool, error) {
	path, ok := fieldPaths[field]
	if !ok {
		return false, dErrors.New(dErrors.CodeBadRequest, "unsupported field: "+string(field))
	}
	n, err := s.coll.CountDocuments(ctx, bson.M{path: value}, options.Count().SetLimit(1))
	if err != nil {
		return false, classify(err, "check registration field")
	}
	return n > 0, nil
}

func (s *MongoStore) List(ctx context.Context) ([]*models.Registration, error) {
	cur, err := s.coll.Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "submittedAt", Value: -1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, classify(err, "list registrations")
	}
	var out []*models.Registration
	if err := cur.All(ctx, &out); err != nil {
		return nil, classify(err, "decode registrations")
	}
	return out, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return classify(s.client.Ping(ctx, readpref.Primary()), "ping mongo")
}

// RunInTx runs fn in a session transaction. The driver retries the whole unit
// on transient transaction errors until the context deadline.
func (s *MongoStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := store.WithTxDeadline(ctx)
	defer cancel()

	session, err := s.client.StartSession()
	if err != nil {
		return classify(err, "start session")
	}
	defer session.EndSession(ctx)

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &mongoTx{store: s})
	}, txOpts)
	if err != nil {
		if errors.Is(err, store.ErrKeyTaken) || errors.Is(err, store.ErrTransactionIDTaken) {
			return err
		}
		var de *dErrors.Error
		if errors.As(err, &de) {
			return err
		}
		return classify(err, "commit transaction")
	}
	return nil
}

type mongoTx struct {
	store *MongoStore
}

func (t *mongoTx) Get(ctx context.Context, key string) (*models.Registration, error) {
	return t.store.FindByKey(ctx, key)
}

func (t *mongoTx) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	return t.store.ExistsByField(ctx, models.FieldTransactionID, transactionID)
}

func (t *mongoTx) Create(ctx context.Context, reg *models.Registration) error {
	if _, err := t.store.coll.InsertOne(ctx, reg); err != nil {
		return classify(err, "insert registration")
	}
	return nil
}

// classify maps driver errors onto store and sentinel errors. Transient
// transaction errors keep their labels so WithTransaction can retry them.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		if strings.Contains(err.Error(), transactionIDIndex) {
			return store.ErrTransactionIDTaken
		}
		return store.ErrKeyTaken
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		if se.HasErrorLabel(driver.TransientTransactionError) || se.HasErrorLabel(driver.UnknownTransactionCommitResult) {
			return err
		}
		switch {
		case se.HasErrorCode(codeWriteConflict), se.HasErrorCode(codeExceededTimeLimit):
			return fmt.Errorf("%s: %w: %v", op, sentinel.ErrUnavailable, err)
		case se.HasErrorCode(codeTooManyConnections), se.HasErrorCode(codeOperationQuotaFailed):
			return fmt.Errorf("%s: %w: %v", op, sentinel.ErrResourceExhausted, err)
		}
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return fmt.Errorf("%s: %w: %v", op, sentinel.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
