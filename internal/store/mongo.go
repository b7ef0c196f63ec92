// This file implements a MongoDB-backed study store.

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BTreeMap/StudyPipe/internal/models"
)

const (
	// DefaultMongoDatabase is used when the connection URI names no database.
	DefaultMongoDatabase = "studypipe"

	mongoStudiesCollection = "studies"
	mongoConnectTimeout    = 10 * time.Second
)

// MongoStore keeps one document per study in the studies collection.
type MongoStore struct {
	client  *mongo.Client
	studies *mongo.Collection
}

// studyDoc is the stored shape of a study. Field keys match models.FieldName
// so a field update is a single $set.
type studyDoc struct {
	ID                 string    `bson:"_id"`
	Title              string    `bson:"title"`
	Description        string    `bson:"description"`
	StudyType          string    `bson:"study_type"`
	Objective          string    `bson:"objective"`
	TargetAudience     string    `bson:"target_audience"`
	InterviewQuestions string    `bson:"interview_questions"`
	Status             string    `bson:"status"`
	CreatedAt          time.Time `bson:"created_at"`
	UpdatedAt          time.Time `bson:"updated_at"`
}

func toStudyDoc(s models.Study) studyDoc {
	return studyDoc{
		ID: s.ID, Title: s.Title, Description: s.Description, StudyType: s.StudyType,
		Objective: s.Objective, TargetAudience: s.TargetAudience, InterviewQuestions: s.InterviewQuestions,
		Status: string(s.Status), CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
	}
}

func (d studyDoc) study() models.Study {
	return models.Study{
		ID: d.ID, Title: d.Title, Description: d.Description, StudyType: d.StudyType,
		Objective: d.Objective, TargetAudience: d.TargetAudience, InterviewQuestions: d.InterviewQuestions,
		Status: models.StudyStatus(d.Status), CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
}

// mongoNow returns the current time at the millisecond precision BSON stores.
func mongoNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// mongoDatabaseName returns the database named in the URI path, or DefaultMongoDatabase.
// Several comma separated hosts may precede the path.
func mongoDatabaseName(dsn string) string {
	_, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return DefaultMongoDatabase
	}
	_, path, ok := strings.Cut(rest, "/")
	if !ok {
		return DefaultMongoDatabase
	}
	name, _, _ := strings.Cut(path, "?")
	if name == "" {
		return DefaultMongoDatabase
	}
	return name
}

// NewMongoStore connects to the MongoDB deployment at the configured URI.
func NewMongoStore(opts ...Option) (*MongoStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewMongoStore invoked", "DSN_set", cfg.DSN != "")
	if cfg.DSN == "" {
		slog.Error("MongoStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.DSN))
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		slog.Error("MongoDB ping failed", "error", err)
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	dbName := mongoDatabaseName(cfg.DSN)
	slog.Debug("MongoStore connected", "database", dbName)
	return &MongoStore{
		client:  client,
		studies: client.Database(dbName).Collection(mongoStudiesCollection),
	}, nil
}

func (s *MongoStore) CreateStudy(ctx context.Context, study models.Study) (models.Study, error) {
	study, err := prepareNewStudy(study, mongoNow())
	if err != nil {
		return models.Study{}, err
	}
	if _, err := s.studies.InsertOne(ctx, toStudyDoc(study)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Study{}, fmt.Errorf("study %s already exists", study.ID)
		}
		slog.Error("MongoStore CreateStudy failed", "error", err, "studyID", study.ID)
		return models.Study{}, fmt.Errorf("failed to insert study %s: %w", study.ID, err)
	}
	slog.Debug("MongoStore CreateStudy succeeded", "studyID", study.ID)
	return study, nil
}

func (s *MongoStore) GetStudy(ctx context.Context, id string) (models.Study, error) {
	var doc studyDoc
	err := s.studies.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Study{}, ErrStudyNotFound
	}
	if err != nil {
		slog.Error("MongoStore GetStudy failed", "error", err, "studyID", id)
		return models.Study{}, fmt.Errorf("failed to get study %s: %w", id, err)
	}
	return doc.study(), nil
}

func (s *MongoStore) ListStudies(ctx context.Context) ([]models.Study, error) {
	sort := bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}
	cursor, err := s.studies.Find(ctx, bson.M{}, options.Find().SetSort(sort))
	if err != nil {
		slog.Error("MongoStore ListStudies query failed", "error", err)
		return nil, fmt.Errorf("failed to query studies: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []studyDoc
	if err := cursor.All(ctx, &docs); err != nil {
		slog.Error("MongoStore ListStudies decode failed", "error", err)
		return nil, fmt.Errorf("failed to decode studies: %w", err)
	}
	studies := make([]models.Study, 0, len(docs))
	for _, doc := range docs {
		studies = append(studies, doc.study())
	}
	slog.Debug("MongoStore ListStudies succeeded", "count", len(studies))
	return studies, nil
}

func (s *MongoStore) UpdateStudyField(ctx context.Context, id string, field models.FieldName, value string) error {
	key, err := fieldColumn(field)
	if err != nil {
		return err
	}
	value, err = models.NormalizeFieldValue(field, value)
	if err != nil {
		return err
	}
	if err := s.set(ctx, id, bson.M{key: value, "updated_at": mongoNow()}); err != nil {
		if !errors.Is(err, ErrStudyNotFound) {
			slog.Error("MongoStore UpdateStudyField failed", "error", err, "studyID", id, "field", field)
		}
		return err
	}
	slog.Debug("MongoStore UpdateStudyField succeeded", "studyID", id, "field", field)
	return nil
}

func (s *MongoStore) SetStudyStatus(ctx context.Context, id string, status models.StudyStatus) error {
	if err := s.set(ctx, id, bson.M{"status": string(status), "updated_at": mongoNow()}); err != nil {
		if !errors.Is(err, ErrStudyNotFound) {
			slog.Error("MongoStore SetStudyStatus failed", "error", err, "studyID", id, "status", status)
		}
		return err
	}
	slog.Debug("MongoStore SetStudyStatus succeeded", "studyID", id, "status", status)
	return nil
}

func (s *MongoStore) set(ctx context.Context, id string, fields bson.M) error {
	res, err := s.studies.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to update study %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrStudyNotFound
	}
	return nil
}

// Close disconnects the MongoDB client.
func (s *MongoStore) Close() error {
	slog.Debug("Closing MongoDB connection")
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
