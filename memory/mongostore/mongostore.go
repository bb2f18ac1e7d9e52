// Package mongostore implements memory.Store on top of MongoDB via
// go.mongodb.org/mongo-driver/v2. SemanticSearch has no embedding model
// behind it here: it uses Mongo's text index to rank by relevance score,
// falling back to a metadata-only filter when query is empty.
package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/strukalex/agentic-assistant-framework-sub000/memory"
)

const (
	defaultDocumentsCollection = "memory_documents"
	defaultMessagesCollection  = "memory_messages"
	defaultOpTimeout           = 5 * time.Second
)

// Options configures the Mongo-backed Store.
type Options struct {
	Client              *mongodriver.Client
	Database            string
	DocumentsCollection string
	MessagesCollection  string
	Timeout             time.Duration
}

// collection narrows the slice of *mongodriver.Collection this store calls
// to an interface, so tests can substitute a fake without a live MongoDB
// connection.
type collection interface {
	InsertOne(ctx context.Context, doc any) (*mongodriver.InsertOneResult, error)
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error)
	Indexes() indexView
}

// cursor narrows *mongodriver.Cursor to the methods Find's callers use.
type cursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
	Close(ctx context.Context) error
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel) (string, error)
}

// mongoCollection adapts *mongodriver.Collection to collection.
type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, doc any) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, doc)
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error) {
	return c.coll.Find(ctx, filter, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel) (string, error) {
	return v.view.CreateOne(ctx, model)
}

// Store implements memory.Store against two MongoDB collections: one for
// documents (store_document/semantic_search) and one for conversation
// messages (store_message/get_conversation_history).
type Store struct {
	documents collection
	messages  collection
	timeout   time.Duration
}

// New constructs a Mongo-backed Store, ensuring the text index required by
// SemanticSearch and the messages index used for history lookups exist.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongostore: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongostore: database name is required")
	}
	docsColl := opts.DocumentsCollection
	if docsColl == "" {
		docsColl = defaultDocumentsCollection
	}
	msgColl := opts.MessagesCollection
	if msgColl == "" {
		msgColl = defaultMessagesCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	db := opts.Client.Database(opts.Database)
	documents := mongoCollection{coll: db.Collection(docsColl)}
	messages := mongoCollection{coll: db.Collection(msgColl)}
	return newStoreWithCollections(ctx, documents, messages, timeout)
}

// newStoreWithCollections builds a Store directly against documents/messages,
// skipping the real Mongo round trip to build the collections themselves.
// Used by New and, with fake collections, by this package's tests.
func newStoreWithCollections(ctx context.Context, documents, messages collection, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	idxCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := documents.Indexes().CreateOne(idxCtx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "content", Value: "text"}},
	}); err != nil {
		return nil, err
	}
	if _, err := messages.Indexes().CreateOne(idxCtx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: 1}},
	}); err != nil {
		return nil, err
	}
	return &Store{documents: documents, messages: messages, timeout: timeout}, nil
}

type documentDoc struct {
	ID        bson.ObjectID  `bson:"_id,omitempty"`
	Content   string         `bson:"content"`
	Metadata  map[string]any `bson:"metadata,omitempty"`
	Embedding []float64      `bson:"embedding,omitempty"`
	StoredAt  time.Time      `bson:"stored_at"`
}

type messageDoc struct {
	UserID    string    `bson:"user_id"`
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	Timestamp time.Time `bson:"timestamp"`
}

// StoreDocument implements memory.Store.
func (s *Store) StoreDocument(ctx context.Context, content string, metadata map[string]any, embedding []float64) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	doc := documentDoc{
		Content:   content,
		Metadata:  metadata,
		Embedding: embedding,
		StoredAt:  time.Now(),
	}
	res, err := s.documents.InsertOne(ctx, doc)
	if err != nil {
		return "", err
	}
	oid, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return "", errors.New("mongostore: unexpected inserted id type")
	}
	return oid.Hex(), nil
}

// SemanticSearch implements memory.Store using Mongo's text index for
// ranking and exact-match metadata filters restricting the candidate set.
func (s *Store) SemanticSearch(ctx context.Context, query string, topK int, filters map[string]any) ([]memory.Document, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{}
	for k, v := range filters {
		filter["metadata."+k] = v
	}
	findOpts := options.Find()
	if topK > 0 {
		findOpts.SetLimit(int64(topK))
	}
	if query != "" {
		filter["$text"] = bson.M{"$search": query}
		findOpts.SetSort(bson.D{{Key: "score", Value: bson.M{"$meta": "textScore"}}})
		findOpts.SetProjection(bson.D{{Key: "score", Value: bson.M{"$meta": "textScore"}}})
	} else {
		findOpts.SetSort(bson.D{{Key: "stored_at", Value: -1}})
	}

	cursor, err := s.documents.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []memory.Document
	for cursor.Next(ctx) {
		var doc documentDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, memory.Document{
			ID:        doc.ID.Hex(),
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: doc.Embedding,
			StoredAt:  doc.StoredAt,
		})
	}
	return out, cursor.Err()
}

// StoreMessage implements memory.Store.
func (s *Store) StoreMessage(ctx context.Context, msg memory.Message) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	_, err := s.messages.InsertOne(ctx, messageDoc{
		UserID:    msg.UserID,
		Role:      msg.Role,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	})
	return err
}

// GetConversationHistory implements memory.Store.
func (s *Store) GetConversationHistory(ctx context.Context, userID string, limit int) ([]memory.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	findOpts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	cursor, err := s.messages.Find(ctx, bson.M{"user_id": userID}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reversed []memory.Message
	for cursor.Next(ctx) {
		var doc messageDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		reversed = append(reversed, memory.Message{
			UserID: doc.UserID, Role: doc.Role, Content: doc.Content, Timestamp: doc.Timestamp,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	out := make([]memory.Message, len(reversed))
	for i, m := range reversed {
		out[len(reversed)-1-i] = m
	}
	return out, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
