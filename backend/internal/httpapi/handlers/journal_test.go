package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tripServer/backend/internal/autosave"
	"tripServer/backend/internal/entity"
	"tripServer/backend/internal/notify"
	"tripServer/backend/internal/store"
)

// 内存版条目存储：同时充当 handlers.EntryStore 与 autosave.EntryStore
type memStore struct {
	entries map[uint64]*entity.JournalEntry
}

func (s *memStore) GetEntry(ctx context.Context, entryID uint64) (*entity.JournalEntry, error) {
	e, ok := s.entries[entryID]
	if !ok {
		return nil, store.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) CreateEntry(ctx context.Context, e *entity.JournalEntry) error {
	e.ID = uint64(len(s.entries) + 1)
	s.entries[e.ID] = e
	return nil
}

func (s *memStore) WithEntryLocked(ctx context.Context, entryID uint64, fn func(tx autosave.EntryTx, cur autosave.Snapshot) error) error {
	e, ok := s.entries[entryID]
	if !ok {
		return store.ErrEntryNotFound
	}
	cur := autosave.Snapshot{Text: e.Text, Version: e.EditVersion, ModifiedBy: e.LastModifiedBy, ModifiedAt: e.UpdatedAt}
	return fn(&memTx{e: e}, cur)
}

type memTx struct{ e *entity.JournalEntry }

func (t *memTx) UpdateAtomically(text, editor string, extra map[string]any) (autosave.Snapshot, error) {
	t.e.Text = text
	if editor != "" {
		t.e.LastModifiedBy = editor
	}
	for col, v := range extra {
		switch col {
		case "location":
			t.e.Location = v.(string)
		case "rating":
			t.e.Rating = v.(int)
		}
	}
	t.e.EditVersion++
	t.e.UpdatedAt = time.Now()
	return autosave.Snapshot{Text: t.e.Text, Version: t.e.EditVersion, ModifiedBy: t.e.LastModifiedBy, ModifiedAt: t.e.UpdatedAt}, nil
}

type memMembers struct{ role entity.Role }

func (m *memMembers) GetRole(ctx context.Context, tripID, userID uint64) (entity.Role, error) {
	if m.role == 0 {
		return 0, store.ErrNotMember
	}
	return m.role, nil
}

type memSink struct{ events []notify.EntryEvent }

func (s *memSink) EntrySaved(evt notify.EntryEvent) { s.events = append(s.events, evt) }

func newTestRouter(ms *memStore, role entity.Role, sink EventSink) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewJournalHandler(autosave.NewHelper(ms), ms, &memMembers{role: role}, nil, nil, sink)
	r := gin.New()
	// 测试里直接注入用户身份，不走 JWT 中间件
	r.Use(func(c *gin.Context) {
		c.Set("userId", uint64(1))
		c.Set("username", "alice")
	})
	r.POST("/v1/trips/:tripID/entries/:entryID/autosave", h.AutoSave)
	r.GET("/v1/trips/:tripID/entries/:entryID", h.GetEntry)
	r.GET("/v1/trips/:tripID/entries/:entryID/version", h.GetVersion)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func seededStore() *memStore {
	return &memStore{entries: map[uint64]*entity.JournalEntry{
		10: {ID: 10, TripID: 7, Title: "day one", Text: "Hello, world!", EditVersion: 5, LastModifiedBy: "alice", UpdatedAt: time.Now()},
	}}
}

func TestAutoSave_SuccessThenConflict(t *testing.T) {
	ms := seededStore()
	sink := &memSink{}
	r := newTestRouter(ms, entity.RoleEditor, sink)

	// A 带 version=5 保存成功，得到 v6
	w := postJSON(t, r, "/v1/trips/7/entries/10/autosave", `{"text":"Hello, universe!","version":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	var okResp struct {
		Version uint64 `json:"version"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &okResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if okResp.Version != 6 {
		t.Fatalf("version = %d, want 6", okResp.Version)
	}
	if len(sink.events) != 1 || sink.events[0].Version != 6 {
		t.Fatalf("events = %+v, want one event at v6", sink.events)
	}

	// B 还拿着 version=5：409 + 渲染好的 diff + 服务器当前版本
	w = postJSON(t, r, "/v1/trips/7/entries/10/autosave", `{"text":"Hello, planet!","version":5}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body=%s", w.Code, w.Body.String())
	}
	var conflict struct {
		Modal         string `json:"modal"`
		ServerVersion uint64 `json:"server_version"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &conflict); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if conflict.ServerVersion != 6 {
		t.Fatalf("server_version = %d, want 6", conflict.ServerVersion)
	}
	if !strings.Contains(conflict.Modal, "-Hello, universe!") ||
		!strings.Contains(conflict.Modal, "+Hello, planet!") {
		t.Fatalf("modal diff wrong:\n%s", conflict.Modal)
	}
	// 冲突不触发通知
	if len(sink.events) != 1 {
		t.Fatalf("events = %d, want still 1", len(sink.events))
	}
}

func TestAutoSave_ExtraFieldsApplied(t *testing.T) {
	ms := seededStore()
	r := newTestRouter(ms, entity.RoleEditor, nil)

	w := postJSON(t, r, "/v1/trips/7/entries/10/autosave",
		`{"text":"t","version":5,"location":"Kyoto","rating":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	e := ms.entries[10]
	if e.Location != "Kyoto" || e.Rating != 5 {
		t.Fatalf("entry = %+v, want location=Kyoto rating=5", e)
	}
}

func TestAutoSave_BadRequests(t *testing.T) {
	ms := seededStore()
	r := newTestRouter(ms, entity.RoleEditor, nil)

	// 格式错误：笼统提示，不碰数据
	w := postJSON(t, r, "/v1/trips/7/entries/10/autosave", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	// 附加字段越界：400 且点名字段
	w = postJSON(t, r, "/v1/trips/7/entries/10/autosave", `{"text":"t","rating":9}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "rating") {
		t.Fatalf("body = %s, want field name", w.Body.String())
	}
	if ms.entries[10].EditVersion != 5 {
		t.Fatalf("version = %d, want unchanged 5", ms.entries[10].EditVersion)
	}
}

func TestAutoSave_Permissions(t *testing.T) {
	// viewer 不能写
	w := postJSON(t, newTestRouter(seededStore(), entity.RoleViewer, nil),
		"/v1/trips/7/entries/10/autosave", `{"text":"t"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	// 非成员
	w = postJSON(t, newTestRouter(seededStore(), 0, nil),
		"/v1/trips/7/entries/10/autosave", `{"text":"t"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestGetVersion_FoundAndMissing(t *testing.T) {
	r := newTestRouter(seededStore(), entity.RoleViewer, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/trips/7/entries/10/version", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"version":5`) {
		t.Fatalf("body = %s, want version 5", w.Body.String())
	}

	// 不存在的条目必须是 404，不能退化成 version=0
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/trips/7/entries/999/version", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body=%s", w.Code, w.Body.String())
	}
}

func TestAutoSave_WrongTrip(t *testing.T) {
	// 条目不属于这个行程：按不存在处理
	w := postJSON(t, newTestRouter(seededStore(), entity.RoleEditor, nil),
		"/v1/trips/8/entries/10/autosave", `{"text":"t"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
