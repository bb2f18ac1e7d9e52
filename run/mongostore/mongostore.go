// Package mongostore implements run.Store on top of MongoDB via
// go.mongodb.org/mongo-driver/v2, for deployments where run metadata must
// survive process restarts (the in-memory store in run/inmem is for tests
// and local development only).
package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/strukalex/agentic-assistant-framework-sub000/approval"
	"github.com/strukalex/agentic-assistant-framework-sub000/run"
	"github.com/strukalex/agentic-assistant-framework-sub000/state"
)

const (
	defaultCollection = "research_runs"
	defaultOpTimeout  = 5 * time.Second
)

// Options configures the Mongo-backed Store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// collection is the slice of *mongodriver.Collection this store actually
// calls, narrowed to an interface so tests can substitute a fake without a
// live MongoDB connection.
type collection interface {
	FindOne(ctx context.Context, filter any) singleResult
	UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

// mongoCollection adapts *mongodriver.Collection to collection.
type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any) singleResult {
	return c.coll.FindOne(ctx, filter)
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
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

// Store implements run.Store against a MongoDB collection.
type Store struct {
	coll    collection
	timeout time.Duration
}

// New constructs a Mongo-backed Store and ensures its unique index on
// run_id exists.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongostore: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongostore: database name is required")
	}
	collectionName := opts.Collection
	if collectionName == "" {
		collectionName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := mongoCollection{coll: opts.Client.Database(opts.Database).Collection(collectionName)}
	return newStoreWithCollection(coll, timeout)
}

// newStoreWithCollection builds a Store directly against coll and ensures
// the unique run_id index on it. Used by New and, with a fake collection,
// by this package's tests.
func newStoreWithCollection(coll collection, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err := coll.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "run_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, err
	}
	return &Store{coll: coll, timeout: timeout}, nil
}

type document struct {
	RunID            string              `bson:"run_id"`
	Status           string              `bson:"status"`
	CreatedAt        time.Time           `bson:"created_at"`
	UpdatedAt        time.Time           `bson:"updated_at"`
	Topic            string              `bson:"topic"`
	UserID           string              `bson:"user_id"`
	IterationsUsed   int                 `bson:"iterations_used"`
	SourcesCount     int                 `bson:"sources_count"`
	MemoryDocumentID string              `bson:"memory_document_id,omitempty"`
	PendingApproval  *pendingApprovalDoc `bson:"pending_approval,omitempty"`
	Markdown         string              `bson:"markdown,omitempty"`
	Sources          []sourceDoc         `bson:"sources,omitempty"`
	Metadata         map[string]any      `bson:"metadata,omitempty"`
	ErrorMessage     string              `bson:"error_message,omitempty"`
}

type pendingApprovalDoc struct {
	ActionType        string    `bson:"action_type"`
	ActionDescription string    `bson:"action_description"`
	RequesterID       string    `bson:"requester_id,omitempty"`
	RequestedAt       time.Time `bson:"requested_at"`
	TimeoutAt         time.Time `bson:"timeout_at"`
	Status            string    `bson:"status"`
}

type sourceDoc struct {
	Title       string    `bson:"title"`
	URL         string    `bson:"url"`
	Snippet     string    `bson:"snippet"`
	RetrievedAt time.Time `bson:"retrieved_at"`
}

func fromRecord(r run.Record) document {
	doc := document{
		RunID:            r.RunID,
		Status:           string(r.Status),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		Topic:            r.Topic,
		UserID:           r.UserID,
		IterationsUsed:   r.IterationsUsed,
		SourcesCount:     r.SourcesCount,
		MemoryDocumentID: r.MemoryDocumentID,
		Markdown:         r.Markdown,
		Metadata:         r.Metadata,
		ErrorMessage:     r.ErrorMessage,
	}
	if r.PendingApproval != nil {
		doc.PendingApproval = &pendingApprovalDoc{
			ActionType:        r.PendingApproval.ActionType,
			ActionDescription: r.PendingApproval.ActionDescription,
			RequesterID:       r.PendingApproval.RequesterID,
			RequestedAt:       r.PendingApproval.RequestedAt,
			TimeoutAt:         r.PendingApproval.TimeoutAt,
			Status:            string(r.PendingApproval.Status),
		}
	}
	for _, src := range r.Sources {
		doc.Sources = append(doc.Sources, sourceDoc{
			Title: src.Title, URL: src.URL, Snippet: src.Snippet, RetrievedAt: src.RetrievedAt,
		})
	}
	return doc
}

func (d document) toRecord() run.Record {
	r := run.Record{
		RunID:            d.RunID,
		Status:           run.Status(d.Status),
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
		Topic:            d.Topic,
		UserID:           d.UserID,
		IterationsUsed:   d.IterationsUsed,
		SourcesCount:     d.SourcesCount,
		MemoryDocumentID: d.MemoryDocumentID,
		Markdown:         d.Markdown,
		Metadata:         d.Metadata,
		ErrorMessage:     d.ErrorMessage,
	}
	if d.PendingApproval != nil {
		r.PendingApproval = &approval.Request{
			ActionType:        d.PendingApproval.ActionType,
			ActionDescription: d.PendingApproval.ActionDescription,
			RequesterID:       d.PendingApproval.RequesterID,
			RequestedAt:       d.PendingApproval.RequestedAt,
			TimeoutAt:         d.PendingApproval.TimeoutAt,
			Status:            approval.RequestStatus(d.PendingApproval.Status),
		}
	}
	for _, src := range d.Sources {
		r.Sources = append(r.Sources, state.SourceReference{
			Title: src.Title, URL: src.URL, Snippet: src.Snippet, RetrievedAt: src.RetrievedAt,
		})
	}
	return r
}

// Upsert implements run.Store.
func (s *Store) Upsert(ctx context.Context, r run.Record) error {
	if r.RunID == "" {
		return errors.New("mongostore: run_id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	doc := fromRecord(r)
	filter := bson.M{"run_id": r.RunID}
	update := bson.M{"$set": doc}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

// Load implements run.Store.
func (s *Store) Load(ctx context.Context, runID string) (run.Record, bool, error) {
	if runID == "" {
		return run.Record{}, false, errors.New("mongostore: run_id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var doc document
	err := s.coll.FindOne(ctx, bson.M{"run_id": runID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return run.Record{}, false, nil
	}
	if err != nil {
		return run.Record{}, false, err
	}
	return doc.toRecord(), true, nil
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
