// Package store provides storage backends for StudyPipe studies.
//
// It includes an in-memory store, SQL-backed stores (SQLite and PostgreSQL)
// and a MongoDB store.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/BTreeMap/StudyPipe/internal/models"
	"github.com/BTreeMap/StudyPipe/internal/util"
)

// ErrStudyNotFound is returned when no study has the requested ID.
var ErrStudyNotFound = errors.New("study not found")

// StudyStore persists study records.
type StudyStore interface {
	CreateStudy(ctx context.Context, study models.Study) (models.Study, error)
	GetStudy(ctx context.Context, id string) (models.Study, error)
	ListStudies(ctx context.Context) ([]models.Study, error)
	// UpdateStudyField writes a single validated field and bumps updated_at.
	UpdateStudyField(ctx context.Context, id string, field models.FieldName, value string) error
	SetStudyStatus(ctx context.Context, id string, status models.StudyStatus) error
	Close() error
}

// prepareNewStudy fills the server-owned columns of a study about to be created.
func prepareNewStudy(study models.Study, now time.Time) (models.Study, error) {
	if study.ID == "" {
		study.ID = util.GenerateStudyID()
	}
	if study.StudyType != "" {
		st, err := models.ParseStudyType(study.StudyType)
		if err != nil {
			return study, err
		}
		study.StudyType = string(st)
	}
	if study.Status == "" {
		study.Status = models.StudyStatusDraft
	}
	study.CreatedAt = now
	study.UpdatedAt = now
	return study, nil
}

// InMemoryStore keeps each study as its JSON document; field updates are applied as JSON patches.
type InMemoryStore struct {
	mu      sync.RWMutex
	studies map[string][]byte
}

// NewInMemoryStore creates an empty in-memory study store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{studies: make(map[string][]byte)}
}

func (s *InMemoryStore) CreateStudy(ctx context.Context, study models.Study) (models.Study, error) {
	study, err := prepareNewStudy(study, time.Now().UTC())
	if err != nil {
		return models.Study{}, err
	}
	doc, err := json.Marshal(study)
	if err != nil {
		return models.Study{}, fmt.Errorf("failed to encode study: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.studies[study.ID]; exists {
		return models.Study{}, fmt.Errorf("study %s already exists", study.ID)
	}
	s.studies[study.ID] = doc
	slog.Debug("InMemoryStore.CreateStudy: study created", "studyID", study.ID)
	return study, nil
}

func (s *InMemoryStore) GetStudy(ctx context.Context, id string) (models.Study, error) {
	s.mu.RLock()
	doc, ok := s.studies[id]
	s.mu.RUnlock()
	if !ok {
		return models.Study{}, ErrStudyNotFound
	}
	var study models.Study
	if err := json.Unmarshal(doc, &study); err != nil {
		return models.Study{}, fmt.Errorf("failed to decode study %s: %w", id, err)
	}
	return study, nil
}

func (s *InMemoryStore) ListStudies(ctx context.Context) ([]models.Study, error) {
	s.mu.RLock()
	studies := make([]models.Study, 0, len(s.studies))
	for id, doc := range s.studies {
		var study models.Study
		if err := json.Unmarshal(doc, &study); err != nil {
			s.mu.RUnlock()
			return nil, fmt.Errorf("failed to decode study %s: %w", id, err)
		}
		studies = append(studies, study)
	}
	s.mu.RUnlock()
	sort.Slice(studies, func(i, j int) bool {
		if studies[i].CreatedAt.Equal(studies[j].CreatedAt) {
			return studies[i].ID < studies[j].ID
		}
		return studies[i].CreatedAt.After(studies[j].CreatedAt)
	})
	return studies, nil
}

func (s *InMemoryStore) UpdateStudyField(ctx context.Context, id string, field models.FieldName, value string) error {
	value, err := models.NormalizeFieldValue(field, value)
	if err != nil {
		return err
	}
	return s.patch(id, []patchOp{
		{Op: "replace", Path: "/" + string(field), Value: value},
		{Op: "replace", Path: "/updated_at", Value: time.Now().UTC()},
	})
}

func (s *InMemoryStore) SetStudyStatus(ctx context.Context, id string, status models.StudyStatus) error {
	return s.patch(id, []patchOp{
		{Op: "replace", Path: "/status", Value: status},
		{Op: "replace", Path: "/updated_at", Value: time.Now().UTC()},
	})
}

func (s *InMemoryStore) Close() error { return nil }

type patchOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

// patch applies an RFC 6902 patch to the stored document under the write lock.
func (s *InMemoryStore) patch(id string, ops []patchOp) error {
	raw, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to encode patch: %w", err)
	}
	p, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return fmt.Errorf("failed to decode patch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.studies[id]
	if !ok {
		return ErrStudyNotFound
	}
	updated, err := p.Apply(doc)
	if err != nil {
		slog.Error("InMemoryStore.patch: apply failed", "studyID", id, "error", err)
		return fmt.Errorf("failed to patch study %s: %w", id, err)
	}
	s.studies[id] = updated
	slog.Debug("InMemoryStore.patch: study updated", "studyID", id, "ops", len(ops))
	return nil
}
