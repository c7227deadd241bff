package task

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the MongoDB collection holding tasks.
const CollectionName = "tasks"

// mongoTask is the BSON shape of a Task.
type mongoTask struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Name          string             `bson:"name"`
	Description   string             `bson:"description"`
	DueDate       time.Time          `bson:"dueDate"`
	Priority      string             `bson:"priority"`
	Status        string             `bson:"status"`
	CreatorEmail  string             `bson:"creatorEmail"`
	Collaborators []string           `bson:"collaborators"`
	Viewers       []string           `bson:"viewers"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
}

func (m mongoTask) task() Task {
	t := Task{
		ID:            m.ID.Hex(),
		Name:          m.Name,
		Description:   m.Description,
		DueDate:       m.DueDate.UTC(),
		Priority:      Priority(m.Priority),
		Status:        Status(m.Status),
		CreatorEmail:  m.CreatorEmail,
		Collaborators: m.Collaborators,
		Viewers:       m.Viewers,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
	return t.Clone()
}

// MongoStore is a MongoDB-backed task store.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore creates a MongoStore on the tasks collection of db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(CollectionName)}
}

// EnsureSchema creates the secondary indexes used by List.
func (s *MongoStore) EnsureSchema(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "creatorEmail", Value: 1}}},
		{Keys: bson.D{{Key: "collaborators", Value: 1}}},
		{Keys: bson.D{{Key: "viewers", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create task indexes: %w", err)
	}
	return nil
}

// ValidID reports whether id is a 24-character hex ObjectID.
func (s *MongoStore) ValidID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}

// Create inserts a new task under a fresh ObjectID.
func (s *MongoStore) Create(ctx context.Context, t *Task) (*Task, error) {
	c := t.Clone()
	doc := mongoTask{
		ID:            primitive.NewObjectID(),
		Name:          c.Name,
		Description:   c.Description,
		DueDate:       c.DueDate,
		Priority:      string(c.Priority),
		Status:        string(c.Status),
		CreatorEmail:  c.CreatorEmail,
		Collaborators: c.Collaborators,
		Viewers:       c.Viewers,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	t.ID = doc.ID.Hex()
	out := doc.task()
	return &out, nil
}

// Get retrieves a single task by ID.
func (s *MongoStore) Get(ctx context.Context, id string) (*Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, ErrNotFound)
	}
	var doc mongoTask
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, mongoNotFound(err))
	}
	t := doc.task()
	return &t, nil
}

// List returns tasks matching f in natural order.
func (s *MongoStore) List(ctx context.Context, f Filter) ([]Task, error) {
	cursor, err := s.coll.Find(ctx, buildFilter(f))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoTask
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	tasks := make([]Task, 0, len(docs))
	for _, d := range docs {
		tasks = append(tasks, d.task())
	}
	return tasks, nil
}

// Replace overwrites the mutable fields of an existing task.
func (s *MongoStore) Replace(ctx context.Context, t *Task) (*Task, error) {
	oid, err := primitive.ObjectIDFromHex(t.ID)
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", t.ID, ErrNotFound)
	}
	c := t.Clone()
	update := bson.M{"$set": bson.M{
		"name":          c.Name,
		"description":   c.Description,
		"dueDate":       c.DueDate,
		"priority":      string(c.Priority),
		"status":        string(c.Status),
		"collaborators": c.Collaborators,
		"viewers":       c.Viewers,
		"updatedAt":     c.UpdatedAt,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc mongoTask
	if err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc); err != nil {
		return nil, fmt.Errorf("update task %s: %w", t.ID, mongoNotFound(err))
	}
	out := doc.task()
	return &out, nil
}

// Delete removes a task and returns the removed document.
func (s *MongoStore) Delete(ctx context.Context, id string) (*Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("delete task %s: %w", id, ErrNotFound)
	}
	var doc mongoTask
	if err := s.coll.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, fmt.Errorf("delete task %s: %w", id, mongoNotFound(err))
	}
	t := doc.task()
	return &t, nil
}

// buildFilter turns a Filter into a MongoDB query document.
func buildFilter(f Filter) bson.M {
	q := bson.M{}
	if f.Name != "" {
		q["name"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.Name), Options: "i"}
	}
	if f.CreatorEmail != "" {
		q["creatorEmail"] = f.CreatorEmail
	}
	if f.Description != "" {
		q["description"] = f.Description
	}
	if f.Status != "" {
		q["status"] = string(f.Status)
	}
	if f.Priority != "" {
		q["priority"] = string(f.Priority)
	}
	if f.DueDateLTE != nil {
		q["dueDate"] = bson.M{"$lte": *f.DueDateLTE}
	}
	if f.AssociatedEmail != "" {
		q["$or"] = bson.A{
			bson.M{"creatorEmail": f.AssociatedEmail},
			bson.M{"collaborators": f.AssociatedEmail},
			bson.M{"viewers": f.AssociatedEmail},
		}
	}
	return q
}

func mongoNotFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}
