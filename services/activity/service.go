package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/repositories"
	"go.uber.org/zap"
)

var (
	// ErrNotStarted is returned when events are logged before Start
	ErrNotStarted = errors.New("activity service not started")

	// ErrBufferFull is returned when the event buffer cannot take more events
	ErrBufferFull = errors.New("activity event buffer full")
)

// Recorder accepts activity events without blocking the caller
type Recorder interface {
	Record(log *models.ActivityLog)
}

// Service writes activity events through a pool of background workers
type Service struct {
	repo        repositories.ActivityRepository
	logger      *zap.Logger
	eventChan   chan *models.ActivityLog
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// Config holds configuration for the Service
type Config struct {
	BufferSize  int
	WorkerCount int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// NewService creates a new Service instance
func NewService(repo repositories.ActivityRepository, logger *zap.Logger, config Config) *Service {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}

	return &Service{
		repo:        repo,
		logger:      logger,
		eventChan:   make(chan *models.ActivityLog, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("activity service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started activity service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting events and waits for pending ones to be written
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.stopped = true
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping activity service", zap.Int("pending_events", len(s.eventChan)))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("activity service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("activity service stop timeout after %v", timeout)
	}
}

// LogEvent queues an event without blocking
func (s *Service) LogEvent(log *models.ActivityLog) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return ErrNotStarted
	}

	select {
	case s.eventChan <- log:
		return nil
	default:
		return ErrBufferFull
	}
}

// Record queues an event and logs instead of failing when it cannot be queued
func (s *Service) Record(log *models.ActivityLog) {
	if err := s.LogEvent(log); err != nil {
		s.logger.Warn("dropping activity event",
			zap.Error(err),
			zap.String("action", string(log.Action)),
			zap.String("user_id", log.UserID.String()))
	}
}

// List returns a user's activity, newest first
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.ActivityLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("activity worker started", zap.Int("worker_id", id))

	for log := range s.eventChan {
		if err := s.processEvent(log); err != nil {
			s.logger.Error("failed to write activity event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(log.Action)),
				zap.String("user_id", log.UserID.String()))
		}
	}

	s.logger.Debug("activity worker stopped", zap.Int("worker_id", id))
}

func (s *Service) processEvent(log *models.ActivityLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.repo.Insert(ctx, log); err != nil {
		return fmt.Errorf("failed to insert activity log: %w", err)
	}
	return nil
}

// Stats represents activity service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// GetStats returns statistics about the service
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}
