package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"fetchrelay/internal/logger"
	"fetchrelay/internal/model"
	"fetchrelay/internal/util"

	"go.uber.org/zap"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrExists            = errors.New("job already exists")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrJobActive         = errors.New("job running")
)

const reconcileMessage = "interrupted by restart"

// Store owns every Job. Reads hand out copies; each mutation rewrites the
// snapshot file before the lock is released.
type Store struct {
	mu   sync.RWMutex
	path string
	jobs map[string]*model.Job
}

func New(path string) *Store {
	return &Store{
		path: path,
		jobs: make(map[string]*model.Job),
	}
}

func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read jobs snapshot: %w", err)
	}

	var list []model.Job
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to parse jobs snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range list {
		job := list[i]
		if job.ID == "" {
			continue
		}
		if job.CreatedAt == 0 {
			job.CreatedAt = time.Now().UnixMilli()
		}
		s.jobs[job.ID] = &job
	}

	logger.Log.Info("jobs loaded",
		zap.String("path", s.path),
		zap.Int("count", len(s.jobs)))

	return nil
}

func (s *Store) Create(job model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrExists, job.ID)
	}

	s.jobs[job.ID] = &job
	s.persistLocked()
	return nil
}

func (s *Store) Get(id string) (model.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return model.Job{}, false
	}

	return *job, true
}

func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.jobs[id]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// List returns all jobs, newest first.
func (s *Store) List() []model.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		list = append(list, *job)
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt > list[j].CreatedAt
		}
		return list[i].ID > list[j].ID
	})

	return list
}

// Update applies fn to the stored job without a state check.
func (s *Store) Update(id string, fn func(*model.Job)) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	fn(job)
	s.persistLocked()
	return *job, nil
}

// Transition moves the job to state to, applying fn in the same critical
// section. Moves outside model.CanTransition are refused.
func (s *Store) Transition(id string, to model.JobState, fn func(*model.Job)) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if !model.CanTransition(job.State, to) {
		return *job, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.State, to)
	}

	job.State = to
	if fn != nil {
		fn(job)
	}

	s.persistLocked()
	return *job, nil
}

func (s *Store) Delete(id string) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	delete(s.jobs, id)
	s.persistLocked()
	return *job, nil
}

// Reconcile repairs jobs left mid-flight by a previous process: downloads
// cannot be resumed and become errors, relays go back to the queue.
func (s *Store) Reconcile() []model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []model.Job
	for _, job := range s.jobs {
		switch job.State {
		case model.StateDownloading:
			job.State = model.StateError
			job.Message = reconcileMessage
		case model.StateUploading:
			job.State = model.StateQueued
			job.Percent = 0
		default:
			continue
		}

		changed = append(changed, *job)
		logger.Log.Info("job reconciled",
			zap.String("job", job.ID),
			zap.String("state", string(job.State)))
	}

	if len(changed) > 0 {
		s.persistLocked()
	}

	return changed
}

func (s *Store) persistLocked() {
	list := make([]model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		list = append(list, *job)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt < list[j].CreatedAt
		}
		return list[i].ID < list[j].ID
	})

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		logger.Log.Error("failed to encode jobs snapshot", zap.Error(err))
		return
	}

	if err := util.AtomicWrite(s.path, bytes.NewReader(data), 0600); err != nil {
		logger.Log.Error("failed to persist jobs snapshot",
			zap.String("path", s.path),
			zap.Error(err))
	}
}
