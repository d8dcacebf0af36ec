package store

import (
	"context"
	"os"
	"sync"
	"testing"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"tripServer/backend/internal/autosave"
	"tripServer/backend/internal/entity"
)

// 需要本地 MySQL；没有就跳过（同 redis 集成测试的做法）
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TRIP_TEST_MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(127.0.0.1:3306)/trip_test?parseTime=true&charset=utf8mb4"
	}
	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Skipf("skip: mysql not available: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil || sqlDB.Ping() != nil {
		t.Skipf("skip: mysql not reachable")
	}
	if err := db.AutoMigrate(&entity.JournalEntry{}, &entity.TripMember{}); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}
	return db
}

func TestJournalStore_VersionMonotonicUnderConcurrency(t *testing.T) {
	db := openTestDB(t)
	s := NewJournalStore(db)
	ctx := context.Background()

	e := &entity.JournalEntry{TripID: 1, Title: t.Name(), Text: "v0"}
	if err := s.CreateEntry(ctx, e); err != nil {
		t.Fatalf("CreateEntry() error = %v", err)
	}
	defer db.Delete(e)

	// N 个并发写者：观测到的版本必须恰好是 {1..N}，无重复无空洞
	const n = 8
	versions := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithEntryLocked(ctx, e.ID, func(tx autosave.EntryTx, cur autosave.Snapshot) error {
				after, err := tx.UpdateAtomically("text", "writer", nil)
				if err != nil {
					return err
				}
				versions <- after.Version
				return nil
			})
			if err != nil {
				t.Errorf("WithEntryLocked() error = %v", err)
			}
		}()
	}
	wg.Wait()
	close(versions)

	seen := make(map[uint64]bool)
	for v := range versions {
		if seen[v] {
			t.Fatalf("duplicate version observed: %d", v)
		}
		seen[v] = true
	}
	for v := uint64(1); v <= n; v++ {
		if !seen[v] {
			t.Fatalf("version gap: %d never observed (got %v)", v, seen)
		}
	}
}

func TestJournalStore_NotFound(t *testing.T) {
	db := openTestDB(t)
	s := NewJournalStore(db)

	err := s.WithEntryLocked(context.Background(), 0, func(tx autosave.EntryTx, cur autosave.Snapshot) error {
		return nil
	})
	if err != ErrEntryNotFound {
		t.Fatalf("WithEntryLocked(missing) error = %v, want ErrEntryNotFound", err)
	}
}

func TestJournalStore_DuplicateEntry(t *testing.T) {
	db := openTestDB(t)
	s := NewJournalStore(db)
	ctx := context.Background()

	e1 := &entity.JournalEntry{TripID: 2, Title: t.Name(), Text: ""}
	if err := s.CreateEntry(ctx, e1); err != nil {
		t.Fatalf("CreateEntry() error = %v", err)
	}
	defer db.Delete(e1)

	e2 := &entity.JournalEntry{TripID: 2, Title: t.Name(), Text: ""}
	if err := s.CreateEntry(ctx, e2); err != ErrDuplicateEntry {
		t.Fatalf("CreateEntry(dup) error = %v, want ErrDuplicateEntry", err)
	}
}
