package store

import (
	"sync"
	"testing"

	"github.com/siteforge/siteforge/models"
)

func newProject(t *testing.T, s *Store) *models.CloneProject {
	t.Helper()
	return s.Create("https://example.com", models.CloneOptions{IncludeAssets: true})
}

func TestCreate_StartsQueued(t *testing.T) {
	s := New()
	p := newProject(t, s)

	if p.Status != models.StatusQueued {
		t.Errorf("new project status = %s, want queued", p.Status)
	}
	if p.ID == "" {
		t.Error("new project has empty ID")
	}
	if p.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestSetStatus_MonotonicTransitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []models.Status
		wantErr bool
	}{
		{"full pipeline", []models.Status{models.StatusCapturing, models.StatusExtracting, models.StatusAnalyzing, models.StatusConverting, models.StatusCompleted}, false},
		{"skip ahead", []models.Status{models.StatusAnalyzing}, false},
		{"backward", []models.Status{models.StatusAnalyzing, models.StatusCapturing}, true},
		{"fail from anywhere", []models.Status{models.StatusCapturing, models.StatusFailed}, false},
		{"resurrect after failed", []models.Status{models.StatusFailed, models.StatusCapturing}, true},
		{"leave completed", []models.Status{models.StatusCapturing, models.StatusExtracting, models.StatusAnalyzing, models.StatusConverting, models.StatusCompleted, models.StatusFailed}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			p := newProject(t, s)

			var err error
			for _, next := range tt.path {
				if err = s.SetStatus(p.ID, next); err != nil {
					break
				}
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("path %v error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestAppendAssets_OnlyWhileExtracting(t *testing.T) {
	s := New()
	p := newProject(t, s)
	asset := models.AssetRecord{LocalPath: "assets/a.png", OriginalURL: "https://example.com/a.png", ByteSize: 42, MimeType: "image/png"}

	if err := s.AppendAssets(p.ID, asset); err != ErrAssetsFrozen {
		t.Errorf("append while queued: err = %v, want ErrAssetsFrozen", err)
	}

	mustStatus(t, s, p.ID, models.StatusCapturing, models.StatusExtracting)
	if err := s.AppendAssets(p.ID, asset); err != nil {
		t.Fatalf("append while extracting: %v", err)
	}

	mustStatus(t, s, p.ID, models.StatusAnalyzing)
	if err := s.AppendAssets(p.ID, asset); err != ErrAssetsFrozen {
		t.Errorf("append after extracting: err = %v, want ErrAssetsFrozen", err)
	}

	got, _ := s.Get(p.ID)
	if len(got.Assets) != 1 {
		t.Errorf("assets length = %d, want 1", len(got.Assets))
	}
}

func TestSetMetrics_WriteOnce(t *testing.T) {
	s := New()
	p := newProject(t, s)

	m := &models.PerformanceMetrics{}
	if err := s.SetMetrics(p.ID, m); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := s.SetMetrics(p.ID, m); err != ErrMetricsWritten {
		t.Errorf("second write: err = %v, want ErrMetricsWritten", err)
	}
}

func TestAcquireJob_SingleActiveJob(t *testing.T) {
	s := New()
	p := newProject(t, s)

	const attempts = 16
	var wg sync.WaitGroup
	acquired := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acquired <- s.AcquireJob(p.ID)
		}()
	}
	wg.Wait()
	close(acquired)

	wins := 0
	for ok := range acquired {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("%d concurrent acquisitions succeeded, want exactly 1", wins)
	}

	s.ReleaseJob(p.ID)
	if !s.AcquireJob(p.ID) {
		t.Error("acquire after release failed")
	}
}

func TestDelete_GatedAndTerminal(t *testing.T) {
	s := New()
	p := newProject(t, s)

	if !s.AcquireJob(p.ID) {
		t.Fatal("acquire failed")
	}
	if err := s.Delete(p.ID); err != ErrActiveJob {
		t.Errorf("delete with active job: err = %v, want ErrActiveJob", err)
	}

	s.ReleaseJob(p.ID)
	if err := s.Delete(p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// Deleted projects vanish from normal reads.
	if _, err := s.Get(p.ID); err != ErrNotFound {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}
	if got := s.List(); len(got) != 0 {
		t.Errorf("List after delete returned %d projects, want 0", len(got))
	}

	// Audit queries still see it.
	audit, err := s.AuditGet(p.ID)
	if err != nil {
		t.Fatalf("AuditGet: %v", err)
	}
	if audit.DeletedAt == nil {
		t.Error("audit record has no DeletedAt")
	}

	// Deletion is irreversible and mutations are rejected.
	if err := s.SetProgress(p.ID, 50); err != ErrDeleted {
		t.Errorf("mutate after delete: err = %v, want ErrDeleted", err)
	}
}

func TestArchive_Reversible(t *testing.T) {
	s := New()
	p := newProject(t, s)

	if err := s.Archive(p.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}
	got, _ := s.Get(p.ID)
	if !got.Archived {
		t.Error("project not archived")
	}

	if err := s.Unarchive(p.ID); err != nil {
		t.Fatalf("unarchive: %v", err)
	}
	got, _ = s.Get(p.ID)
	if got.Archived {
		t.Error("project still archived")
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := New()
	p := newProject(t, s)
	mustStatus(t, s, p.ID, models.StatusCapturing, models.StatusExtracting)

	if err := s.AppendAssets(p.ID, models.AssetRecord{LocalPath: "assets/x.css"}); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get(p.ID)
	got.Assets[0].LocalPath = "mutated"
	got.Status = models.StatusFailed

	fresh, _ := s.Get(p.ID)
	if fresh.Assets[0].LocalPath != "assets/x.css" {
		t.Error("caller mutation leaked into store")
	}
	if fresh.Status != models.StatusExtracting {
		t.Error("caller status mutation leaked into store")
	}
}

func mustStatus(t *testing.T, s *Store, id string, path ...models.Status) {
	t.Helper()
	for _, st := range path {
		if err := s.SetStatus(id, st); err != nil {
			t.Fatalf("transition to %s: %v", st, err)
		}
	}
}
