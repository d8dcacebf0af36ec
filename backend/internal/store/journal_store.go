package store

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tripServer/backend/internal/autosave"
	"tripServer/backend/internal/entity"
)

var (
	ErrEntryNotFound  = errors.New("journal entry not found")
	ErrDuplicateEntry = errors.New("duplicate journal entry")
)

type JournalStore struct{ db *gorm.DB }

func NewJournalStore(db *gorm.DB) *JournalStore { return &JournalStore{db: db} }

// 确保 JournalStore 实现了 autosave.EntryStore 接口
var _ autosave.EntryStore = (*JournalStore)(nil)

func snapshotOf(e *entity.JournalEntry) autosave.Snapshot {
	return autosave.Snapshot{
		Text:       e.Text,
		Version:    e.EditVersion,
		ModifiedBy: e.LastModifiedBy,
		ModifiedAt: e.UpdatedAt,
	}
}

// WithEntryLocked 在事务中 SELECT ... FOR UPDATE 锁行后执行 fn
// fn 返回错误则整个事务回滚
func (s *JournalStore) WithEntryLocked(ctx context.Context, entryID uint64, fn func(tx autosave.EntryTx, cur autosave.Snapshot) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var e entity.JournalEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&e, entryID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEntryNotFound
			}
			return err
		}
		return fn(&entryTx{tx: tx, entry: &e}, snapshotOf(&e))
	})
}

type entryTx struct {
	tx    *gorm.DB
	entry *entity.JournalEntry
}

// UpdateAtomically 单条 UPDATE 写入 text/editor/extra，版本号用数据库表达式
// edit_version = edit_version + 1 自增（不在内存里算，避免并发丢更新），
// 然后重读该行，返回真实的 edit_version 与 updated_at
func (t *entryTx) UpdateAtomically(text, editor string, extra map[string]any) (autosave.Snapshot, error) {
	updates := map[string]any{
		"text":         text,
		"edit_version": gorm.Expr("edit_version + ?", 1),
	}
	if editor != "" {
		updates["last_modified_by"] = editor
	}
	for col, v := range extra {
		updates[col] = v
	}
	if err := t.tx.Model(t.entry).Updates(updates).Error; err != nil {
		return autosave.Snapshot{}, err
	}
	if err := t.tx.First(t.entry, t.entry.ID).Error; err != nil {
		return autosave.Snapshot{}, err
	}
	return snapshotOf(t.entry), nil
}

func (s *JournalStore) GetEntry(ctx context.Context, entryID uint64) (*entity.JournalEntry, error) {
	var e entity.JournalEntry
	err := s.db.WithContext(ctx).First(&e, entryID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *JournalStore) CreateEntry(ctx context.Context, e *entity.JournalEntry) error {
	err := s.db.WithContext(ctx).Create(e).Error
	if err != nil {
		// 1062 = duplicate key
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrDuplicateEntry
		}
		return err
	}
	return nil
}
