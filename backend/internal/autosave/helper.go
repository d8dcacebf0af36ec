package autosave

import "context"

// EntryStore 由存储层实现
// 约定：WithEntryLocked 在单个事务中以行锁读出条目，再把当前状态交给 fn；
// fn 返回错误则整个事务回滚
type EntryStore interface {
	WithEntryLocked(ctx context.Context, entryID uint64, fn func(tx EntryTx, cur Snapshot) error) error
}

// EntryTx 持锁事务内可用的写操作
type EntryTx interface {
	// UpdateAtomically 在一条 UPDATE 里写入 text/editor/extra 并让版本号在
	// 数据库侧 +1（不能在内存里算），随后重读该行返回真实的版本与修改时间
	UpdateAtomically(text, editor string, extra map[string]any) (Snapshot, error)
}

// Result 保存结果：Conflict 非 nil 表示版本冲突，这次请求没有写库
type Result struct {
	Version  uint64
	Conflict *Conflict
}

// Helper 自动保存协调器：乐观并发检查 + 原子更新
type Helper struct {
	store EntryStore
}

func NewHelper(store EntryStore) *Helper { return &Helper{store: store} }

// Save 客户端带了版本号且与当前版本不一致时返回冲突结果（含渲染好的 diff），
// 否则原子更新。客户端未带版本号视为首次保存，直接写入。
func (h *Helper) Save(ctx context.Context, entryID uint64, editor string, req *Request) (*Result, error) {
	res := &Result{}
	err := h.store.WithEntryLocked(ctx, entryID, func(tx EntryTx, cur Snapshot) error {
		if req.Version != nil && *req.Version != cur.Version {
			c := BuildConflict(cur, req.Text)
			res.Conflict = &c
			return nil
		}
		after, err := tx.UpdateAtomically(req.Text, editor, req.Extra)
		if err != nil {
			return err
		}
		res.Version = after.Version
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
