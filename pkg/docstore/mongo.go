package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo collection names for users and keys.
const (
	usersCollection   = "users"
	apiKeysCollection = "api_keys"
)

// MongoStore keeps documents in a MongoDB database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ Store = (*MongoStore)(nil)

// ConnectMongo connects to uri, pings the server and ensures the key
// indexes of database.
func ConnectMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := &MongoStore{client: client, db: client.Database(database)}
	_, err = s.db.Collection(apiKeysCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "hash", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create api key index: %w", err)
	}
	return s, nil
}

// Database exposes the underlying database, shared with the advisory
// source.
func (s *MongoStore) Database() *mongo.Database { return s.db }

type entryDoc struct {
	Key    string    `bson:"_id"`
	Value  string    `bson:"value"`
	Moment time.Time `bson:"moment"`
}

type userDoc struct {
	ID        string    `bson:"_id"`
	Email     string    `bson:"email,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

type apiKeyDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Hash      string    `bson:"hash"`
	Name      string    `bson:"name,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

func mongoNotFound(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

func (s *MongoStore) Get(ctx context.Context, coll Collection, key string) (*Entry, error) {
	var doc entryDoc
	err := s.db.Collection(string(coll)).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		return nil, mongoNotFound(err, string(coll)+"/"+key)
	}
	return &Entry{Key: doc.Key, Value: doc.Value, Moment: doc.Moment.UTC()}, nil
}

func (s *MongoStore) Put(ctx context.Context, coll Collection, e Entry) error {
	_, err := s.db.Collection(string(coll)).UpdateOne(ctx,
		bson.M{"_id": e.Key},
		bson.M{"$set": bson.M{"value": e.Value, "moment": e.Moment.UTC()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) Clear(ctx context.Context, coll Collection) (int, error) {
	res, err := s.db.Collection(string(coll)).DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (s *MongoStore) CreateUser(ctx context.Context, u User) error {
	_, err := s.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"_id": u.ID},
		bson.M{"$setOnInsert": bson.M{"email": u.Email, "created_at": u.CreatedAt.UTC()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) GetUser(ctx context.Context, id string) (*User, error) {
	var doc userDoc
	if err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, mongoNotFound(err, "user "+id)
	}
	return &User{ID: doc.ID, Email: doc.Email, CreatedAt: doc.CreatedAt.UTC()}, nil
}

func (s *MongoStore) CreateAPIKey(ctx context.Context, k APIKey) error {
	_, err := s.db.Collection(apiKeysCollection).InsertOne(ctx, apiKeyDoc{
		ID:        k.ID,
		UserID:    k.UserID,
		Hash:      k.Hash,
		Name:      k.Name,
		CreatedAt: k.CreatedAt.UTC(),
		ExpiresAt: k.ExpiresAt.UTC(),
	})
	return err
}

func (s *MongoStore) APIKeyByHash(ctx context.Context, hash string) (*APIKey, error) {
	var doc apiKeyDoc
	if err := s.db.Collection(apiKeysCollection).FindOne(ctx, bson.M{"hash": hash}).Decode(&doc); err != nil {
		return nil, mongoNotFound(err, "api key")
	}
	return &APIKey{
		ID:        doc.ID,
		UserID:    doc.UserID,
		Hash:      doc.Hash,
		Name:      doc.Name,
		CreatedAt: doc.CreatedAt.UTC(),
		ExpiresAt: doc.ExpiresAt.UTC(),
	}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
