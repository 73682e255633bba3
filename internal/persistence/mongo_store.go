package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

const mongoTimeout = 5 * time.Second

// MongoRunStore is a RunStore and EventStore backed by MongoDB.
type MongoRunStore struct {
	runs   *mongo.Collection
	events *mongo.Collection
}

var (
	_ RunStore   = (*MongoRunStore)(nil)
	_ EventStore = (*MongoRunStore)(nil)
)

// NewMongoRunStore creates a Mongo-backed run store.
// dbName defaults to "flowstate" if empty, collName defaults to "runs";
// events go to "<collName>_events".
func NewMongoRunStore(client *mongo.Client, dbName, collName string) *MongoRunStore {
	if dbName == "" {
		dbName = "flowstate"
	}
	if collName == "" {
		collName = "runs"
	}

	db := client.Database(dbName)
	return &MongoRunStore{
		runs:   db.Collection(collName),
		events: db.Collection(collName + "_events"),
	}
}

type mongoRunDoc struct {
	ID           string    `bson:"_id"`
	Workflow     string    `bson:"workflow_name"`
	Status       string    `bson:"status"`
	CurrentState string    `bson:"current_state"`
	StartedAt    time.Time `bson:"started_at"`
	Data         []byte    `bson:"data"`
}

type mongoEventDoc struct {
	ID       primitive.ObjectID `bson:"_id"`
	RunID    string             `bson:"run_id"`
	At       time.Time          `bson:"at"`
	Type     string             `bson:"type"`
	Workflow string             `bson:"workflow_name"`
	State    string             `bson:"state"`
	Details  string             `bson:"details"`
}

func newMongoRunDoc(run *api.WorkflowRun) (mongoRunDoc, error) {
	data, err := encodeRun(run)
	if err != nil {
		return mongoRunDoc{}, err
	}
	return mongoRunDoc{
		ID:           run.ID,
		Workflow:     run.Workflow.Name,
		Status:       string(run.Status),
		CurrentState: string(run.CurrentState),
		StartedAt:    run.StartedAt.UTC(),
		Data:         data,
	}, nil
}

func (s *MongoRunStore) SaveRun(ctx context.Context, run *api.WorkflowRun) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	doc, err := newMongoRunDoc(run)
	if err != nil {
		return err
	}
	// A duplicate ID is reported to the caller as-is.
	_, err = s.runs.InsertOne(ctx, doc)
	return err
}

func (s *MongoRunStore) UpdateRun(ctx context.Context, run *api.WorkflowRun) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	doc, err := newMongoRunDoc(run)
	if err != nil {
		return err
	}
	update := bson.M{
		"$set": bson.M{
			"workflow_name": doc.Workflow,
			"status":        doc.Status,
			"current_state": doc.CurrentState,
			"data":          doc.Data,
		},
	}

	res, err := s.runs.UpdateByID(ctx, run.ID, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *MongoRunStore) GetRun(ctx context.Context, id string) (*api.WorkflowRun, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	var doc mongoRunDoc
	if err := s.runs.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return decodeRun(doc.Data)
}

func (s *MongoRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.WorkflowRun, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*mongoTimeout)
	defer cancel()

	bfilter := bson.M{}
	if filter.WorkflowName != "" {
		bfilter["workflow_name"] = filter.WorkflowName
	}
	if filter.Status != "" {
		bfilter["status"] = string(filter.Status)
	}

	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.runs.Find(ctx, bfilter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var runs []*api.WorkflowRun
	for cur.Next(ctx) {
		var doc mongoRunDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		run, err := decodeRun(doc.Data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *MongoRunStore) AppendEvent(ctx context.Context, ev api.ExecutionEvent) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.events.InsertOne(ctx, mongoEventDoc{
		ID:       primitive.NewObjectID(),
		RunID:    ev.RunID,
		At:       at.UTC(),
		Type:     string(ev.Type),
		Workflow: ev.Workflow,
		State:    string(ev.State),
		Details:  ev.Details,
	})
	return err
}

func (s *MongoRunStore) ListEvents(ctx context.Context, runID string) ([]api.ExecutionEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*mongoTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.events.Find(ctx, bson.M{"run_id": runID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []api.ExecutionEvent
	for cur.Next(ctx) {
		var doc mongoEventDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, api.ExecutionEvent{
			RunID:    doc.RunID,
			At:       doc.At,
			Type:     api.EventType(doc.Type),
			Workflow: doc.Workflow,
			State:    api.StateID(doc.State),
			Details:  doc.Details,
		})
	}
	return out, cur.Err()
}
