// Package store is the single point of truth for CloneProject records.
// Every pipeline stage writes only its designated fields through the
// field-scoped setters below, which enforce the aggregate invariants:
// monotonic status transitions, append-only assets during extraction,
// write-once metrics, and exclusion of deleted projects from reads.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siteforge/siteforge/models"
)

var (
	// ErrNotFound is returned for unknown or deleted project IDs.
	ErrNotFound = errors.New("store: project not found")

	// ErrActiveJob is returned when deletion is attempted on a project
	// whose job has not reached a terminal status.
	ErrActiveJob = errors.New("store: project has an active job")

	// ErrMetricsWritten is returned on a second SetMetrics call.
	ErrMetricsWritten = errors.New("store: metrics already written")

	// ErrAssetsFrozen is returned when assets are appended outside the
	// extracting stage.
	ErrAssetsFrozen = errors.New("store: assets are frozen")

	// ErrDeleted is returned when mutating a deleted project.
	ErrDeleted = errors.New("store: project is deleted")
)

// Store is an in-memory project record store. It is safe for concurrent
// use. Persistence beyond process lifetime is the external collaborator's
// concern; this implementation backs the pipeline and the polling API.
type Store struct {
	mu       sync.RWMutex
	projects map[string]*models.CloneProject
	active   map[string]struct{} // project IDs with a running job
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		projects: make(map[string]*models.CloneProject),
		active:   make(map[string]struct{}),
	}
}

// Create inserts a new project in status queued and returns a copy.
func (s *Store) Create(sourceURL string, opts models.CloneOptions) *models.CloneProject {
	p := &models.CloneProject{
		ID:        uuid.NewString(),
		SourceURL: sourceURL,
		Status:    models.StatusQueued,
		Options:   opts,
		Assets:    []models.AssetRecord{},
		Issues:    []models.Issue{},
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.projects[p.ID] = p
	s.mu.Unlock()

	return p.Clone()
}

// Get returns a copy of the project, excluding deleted records.
func (s *Store) Get(id string) (*models.CloneProject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok || p.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// List returns copies of all non-deleted projects, newest first.
func (s *Store) List() []*models.CloneProject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.CloneProject, 0, len(s.projects))
	for _, p := range s.projects {
		if p.DeletedAt == nil {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// AuditGet returns the project even when deleted. Audit/history only.
func (s *Store) AuditGet(id string) (*models.CloneProject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// AcquireJob marks the project as having an active job. It returns false
// when a job is already active, enforcing the single-active-job invariant.
func (s *Store) AcquireJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok || p.DeletedAt != nil {
		return false
	}
	if _, busy := s.active[id]; busy {
		return false
	}
	s.active[id] = struct{}{}
	return true
}

// ReleaseJob clears the active-job mark. Called at terminal status.
func (s *Store) ReleaseJob(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// mutate runs fn against the live record under the write lock.
func (s *Store) mutate(id string, fn func(p *models.CloneProject) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return ErrNotFound
	}
	if p.DeletedAt != nil {
		return ErrDeleted
	}
	return fn(p)
}

// SetStatus advances the state machine. Backward transitions are rejected
// except into failed.
func (s *Store) SetStatus(id string, next models.Status) error {
	return s.mutate(id, func(p *models.CloneProject) error {
		if !p.Status.CanTransitionTo(next) {
			return fmt.Errorf("store: illegal status transition %s -> %s", p.Status, next)
		}
		p.Status = next
		return nil
	})
}

// SetProgress records the overall completion percentage (clamped 0-100).
func (s *Store) SetProgress(id string, percent int) error {
	return s.mutate(id, func(p *models.CloneProject) error {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		p.Progress = percent
		return nil
	})
}

// SetOriginalHTML stores the raw capture artifact.
func (s *Store) SetOriginalHTML(id, html string) error {
	return s.mutate(id, func(p *models.CloneProject) error {
		p.OriginalHTML = html
		return nil
	})
}

// SetOptimizedHTML stores the optimizer's artifact.
func (s *Store) SetOptimizedHTML(id, html string) error {
	return s.mutate(id, func(p *models.CloneProject) error {
		p.OptimizedHTML = html
		return nil
	})
}

// AppendAssets grows the asset list. Only legal while extracting; the
// list is frozen once the stage moves on.
func (s *Store) AppendAssets(id string, assets ...models.AssetRecord) error {
	return s.mutate(id, func(p *models.CloneProject) error {
		if p.Status != models.StatusExtracting {
			return ErrAssetsFrozen
		}
		p.Assets = append(p.Assets, assets...)
		return nil
	})
}

// SetMetrics writes the analysis result. Exactly once, atomically.
func (s *Store) SetMetrics(id string, m *models.PerformanceMetrics) error {
	return s.mutate(id, func(p *models.CloneProject) error {
		if p.Metrics != nil {
			return ErrMetricsWritten
		}
		p.Metrics = m
		return nil
	})
}

// SetTechnologyProfile stores the detector's result.
func (s *Store) SetTechnologyProfile(id string, techs []models.Technology) error {
	return s.mutate(id, func(p *models.CloneProject) error {
		p.TechnologyProfile = techs
		return nil
	})
}

// SetConvertedOutput stores the converter's document and report.
func (s *Store) SetConvertedOutput(id, content string, r *models.ConversionReport) error {
	return s.mutate(id, func(p *models.CloneProject) error {
		p.ConvertedContent = content
		p.ConversionReport = r
		return nil
	})
}

// AppendIssue records a non-fatal problem on the project.
func (s *Store) AppendIssue(id string, issue models.Issue) error {
	return s.mutate(id, func(p *models.CloneProject) error {
		p.Issues = append(p.Issues, issue)
		return nil
	})
}

// Fail marks the job failed with a human-readable reason. Partial assets
// and metrics are left as-is for debugging.
func (s *Store) Fail(id, reason string) error {
	return s.mutate(id, func(p *models.CloneProject) error {
		if p.Status.Terminal() && p.Status != models.StatusFailed {
			return fmt.Errorf("store: cannot fail project in status %s", p.Status)
		}
		p.Status = models.StatusFailed
		p.FailureReason = reason
		return nil
	})
}

// Archive flags the project. Reversible via Unarchive.
func (s *Store) Archive(id string) error {
	return s.mutate(id, func(p *models.CloneProject) error {
		p.Archived = true
		return nil
	})
}

// Unarchive clears the archive flag.
func (s *Store) Unarchive(id string) error {
	return s.mutate(id, func(p *models.CloneProject) error {
		p.Archived = false
		return nil
	})
}

// Delete marks the project deleted. Terminal and irreversible; rejected
// while a job is active. The record stays reachable through audit queries.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok || p.DeletedAt != nil {
		return ErrNotFound
	}
	if _, busy := s.active[id]; busy {
		return ErrActiveJob
	}
	now := time.Now().UTC()
	p.DeletedAt = &now
	return nil
}
