package notification

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the MongoDB collection holding notifications.
const CollectionName = "notifications"

type mongoUpdate struct {
	Field    string `bson:"field"`
	OldValue string `bson:"oldValue"`
	NewValue string `bson:"newValue"`
}

type mongoNotification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Message   string             `bson:"message"`
	TaskID    string             `bson:"taskId"`
	Users     []string           `bson:"users"`
	Updates   []mongoUpdate      `bson:"updates"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (m mongoNotification) notification() Notification {
	n := Notification{
		ID:        m.ID.Hex(),
		Message:   m.Message,
		TaskID:    m.TaskID,
		Users:     m.Users,
		CreatedAt: m.CreatedAt.UTC(),
	}
	for _, u := range m.Updates {
		n.Updates = append(n.Updates, Update(u))
	}
	return cloneNotification(n)
}

// MongoStore is a MongoDB-backed notification log.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore creates a MongoStore on the notifications collection of db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(CollectionName)}
}

// EnsureSchema creates the index backing ForUser.
func (s *MongoStore) EnsureSchema(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "users", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create notification index: %w", err)
	}
	return nil
}

// Append inserts a notification under a fresh ObjectID.
func (s *MongoStore) Append(ctx context.Context, n *Notification) (*Notification, error) {
	c := cloneNotification(*n)
	doc := mongoNotification{
		ID:        primitive.NewObjectID(),
		Message:   c.Message,
		TaskID:    c.TaskID,
		Users:     c.Users,
		Updates:   make([]mongoUpdate, 0, len(c.Updates)),
		CreatedAt: c.CreatedAt,
	}
	for _, u := range c.Updates {
		doc.Updates = append(doc.Updates, mongoUpdate(u))
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	n.ID = doc.ID.Hex()
	out := doc.notification()
	return &out, nil
}

// ForUser returns notifications addressed to email, newest first.
func (s *MongoStore) ForUser(ctx context.Context, email string) ([]Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.coll.Find(ctx, bson.M{"users": email}, opts)
	if err != nil {
		return nil, fmt.Errorf("notifications for %s: %w", email, err)
	}
	defer cursor.Close(ctx)

	var docs []mongoNotification
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	out := make([]Notification, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.notification())
	}
	return out, nil
}
