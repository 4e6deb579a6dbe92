package positions

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/halcyonbeam/halcyon-core/internal/infrastructure/database"
	_ "github.com/halcyonbeam/halcyon-core/migrations"
)

func testRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "halcyon.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func samplePosition(name string) *MotorPosition {
	return &MotorPosition{
		UID:  "uid-" + name,
		Name: name,
		Axes: []MotorAxis{
			{Name: "mono_bragg", Readback: 14.31},
			{Name: "slit_gap", Readback: 0.5, Offset: 0.01},
		},
		SavedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestRepositoryCreateAndGet(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	want := samplePosition("alignment")
	if err := repo.Create(ctx, want); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByUID(ctx, want.UID)
	if err != nil {
		t.Fatalf("GetByUID: %v", err)
	}
	if got.Name != want.Name || len(got.Axes) != 2 {
		t.Errorf("got %+v", got)
	}
	if got.Axes[1].Offset != 0.01 {
		t.Errorf("offset = %v, want 0.01", got.Axes[1].Offset)
	}
	if !got.SavedAt.Equal(want.SavedAt) {
		t.Errorf("saved_at = %v, want %v", got.SavedAt, want.SavedAt)
	}
}

func TestRepositoryGetMissing(t *testing.T) {
	repo := testRepository(t)
	if _, err := repo.GetByUID(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByUID: got %v, want ErrNotFound", err)
	}
}

func TestRepositoryListNewestFirst(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	older := samplePosition("older")
	older.SavedAt = time.Now().UTC().Add(-time.Hour)
	newer := samplePosition("newer")
	for _, p := range []*MotorPosition{older, newer} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("Create %s: %v", p.Name, err)
		}
	}

	got, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].Name != "newer" || got[1].Name != "older" {
		t.Errorf("List order = %v", got)
	}
}

func TestRepositoryDelete(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	p := samplePosition("temp")
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Delete(ctx, p.UID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByUID(ctx, p.UID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByUID after delete: got %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, p.UID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: got %v, want ErrNotFound", err)
	}
}
