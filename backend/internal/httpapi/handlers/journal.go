package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tripServer/backend/internal/autosave"
	"tripServer/backend/internal/cache"
	"tripServer/backend/internal/entity"
	"tripServer/backend/internal/notify"
	"tripServer/backend/internal/store"
)

// 存储侧依赖只声明契约，实现在 store 中
type EntryStore interface {
	GetEntry(ctx context.Context, entryID uint64) (*entity.JournalEntry, error)
	CreateEntry(ctx context.Context, e *entity.JournalEntry) error
}

type MemberStore interface {
	GetRole(ctx context.Context, tripID, userID uint64) (entity.Role, error)
}

// EventSink 保存成功后的通知出口（notify.Notifier 实现）
type EventSink interface {
	EntrySaved(evt notify.EntryEvent)
}

type JournalHandler struct {
	saver    *autosave.Helper
	entries  EntryStore
	members  MemberStore
	presence cache.EditorPresence // 可为 nil（未接 redis 时）
	versions *cache.VersionCache  // 可为 nil
	events   EventSink            // 可为 nil
	parsers  map[string]autosave.FieldParser
}

func NewJournalHandler(saver *autosave.Helper, entries EntryStore, members MemberStore,
	presence cache.EditorPresence, versions *cache.VersionCache, events EventSink) *JournalHandler {
	return &JournalHandler{
		saver:    saver,
		entries:  entries,
		members:  members,
		presence: presence,
		versions: versions,
		events:   events,
		parsers:  entryFieldParsers(),
	}
}

// 自动保存请求里允许携带的附加字段及其解析规则
// 键名即数据库列名，解析结果随文本在同一条 UPDATE 里写入
func entryFieldParsers() map[string]autosave.FieldParser {
	return map[string]autosave.FieldParser{
		"location": func(raw json.RawMessage) (any, error) {
			var v string
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			if len(v) > 255 {
				return nil, errors.New("location too long")
			}
			return v, nil
		},
		"rating": func(raw json.RawMessage) (any, error) {
			var v int
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			if v < 1 || v > 5 {
				return nil, fmt.Errorf("rating out of range: %d", v)
			}
			return v, nil
		},
	}
}

func currentUser(c *gin.Context) (uint64, string, bool) {
	v, ok := c.Get("userId")
	if !ok {
		return 0, "", false
	}
	userID, ok := v.(uint64)
	if !ok {
		return 0, "", false
	}
	return userID, c.GetString("username"), true
}

func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// requireRole 成员校验：非成员 403，角色不够 403
func (h *JournalHandler) requireRole(c *gin.Context, tripID, userID uint64, required entity.Role) bool {
	role, err := h.members.GetRole(c.Request.Context(), tripID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotMember) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a trip member"})
			return false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return false
	}
	if !role.AtLeast(required) {
		c.JSON(http.StatusForbidden, gin.H{"error": "requires " + required.String() + " role"})
		return false
	}
	return true
}

// getTripEntry 读条目并校验归属：条目不在这个行程下按不存在处理
func (h *JournalHandler) getTripEntry(c *gin.Context, tripID, entryID uint64) (*entity.JournalEntry, bool) {
	e, err := h.entries.GetEntry(c.Request.Context(), entryID)
	if err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if e.TripID != tripID {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return nil, false
	}
	return e, true
}

// AutoSave POST /v1/trips/:tripID/entries/:entryID/autosave
// 成功 200 {"version": n}；版本冲突 409 {"modal": html, "server_version": n}
func (h *JournalHandler) AutoSave(c *gin.Context) {
	userID, username, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	tripID, ok := pathID(c, "tripID")
	if !ok {
		return
	}
	entryID, ok := pathID(c, "entryID")
	if !ok {
		return
	}
	if !h.requireRole(c, tripID, userID, entity.RoleEditor) {
		return
	}
	if _, ok := h.getTripEntry(c, tripID, entryID); !ok {
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	req, err := autosave.ParseRequest(body, h.parsers)
	if err != nil {
		var fe *autosave.FieldError
		if errors.As(err, &fe) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fe.Error(), "field": fe.Field})
			return
		}
		// 格式错误只回笼统提示，不带 diff 内容
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.saver.Save(c.Request.Context(), entryID, username, req)
	if err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if res.Conflict != nil {
		c.JSON(http.StatusConflict, res.Conflict)
		return
	}

	// 保存成功后的缓存刷新与通知都是尽力而为，不影响响应
	ctx := c.Request.Context()
	if h.presence != nil {
		if err := h.presence.AddEditor(ctx, entryID, userID, username, 600*time.Second); err != nil {
			log.Printf("refresh editor presence error: %v", err)
		}
	}
	if h.versions != nil {
		if err := h.versions.Invalidate(ctx, entryID, res.Version); err != nil {
			log.Printf("refresh version cache error: %v", err)
		}
	}
	if h.events != nil {
		h.events.EntrySaved(notify.EntryEvent{
			TripID:  tripID,
			EntryID: entryID,
			Editor:  username,
			Version: res.Version,
		})
	}

	c.JSON(http.StatusOK, gin.H{"version": res.Version})
}

// GetEntry GET /v1/trips/:tripID/entries/:entryID
func (h *JournalHandler) GetEntry(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	tripID, ok := pathID(c, "tripID")
	if !ok {
		return
	}
	entryID, ok := pathID(c, "entryID")
	if !ok {
		return
	}
	if !h.requireRole(c, tripID, userID, entity.RoleViewer) {
		return
	}
	e, ok := h.getTripEntry(c, tripID, entryID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":             e.ID,
		"tripId":         e.TripID,
		"title":          e.Title,
		"text":           e.Text,
		"version":        e.EditVersion,
		"lastModifiedBy": e.LastModifiedBy,
		"location":       e.Location,
		"rating":         e.Rating,
		"updatedAt":      e.UpdatedAt.Format(time.RFC3339),
	})
}

// GetVersion GET /v1/trips/:tripID/entries/:entryID/version
// 客户端轮询用，走读缓存；冲突判定仍以保存时的行锁为准
func (h *JournalHandler) GetVersion(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	tripID, ok := pathID(c, "tripID")
	if !ok {
		return
	}
	entryID, ok := pathID(c, "entryID")
	if !ok {
		return
	}
	if !h.requireRole(c, tripID, userID, entity.RoleViewer) {
		return
	}

	fetch := func() (uint64, bool, error) {
		e, err := h.entries.GetEntry(c.Request.Context(), entryID)
		if err != nil {
			if errors.Is(err, store.ErrEntryNotFound) {
				return 0, false, nil
			}
			return 0, false, err
		}
		if e.TripID != tripID {
			return 0, false, nil
		}
		return e.EditVersion, true, nil
	}

	if h.versions == nil {
		v, exists, err := fetch()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !exists {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"version": v})
		return
	}

	// 缓存路径对"条目不存在"的回答必须和直查一致
	v, exists, err := h.versions.GetVersion(c.Request.Context(), entryID, fetch)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": v})
}

// GetEditors GET /v1/trips/:tripID/entries/:entryID/editors
func (h *JournalHandler) GetEditors(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	tripID, ok := pathID(c, "tripID")
	if !ok {
		return
	}
	entryID, ok := pathID(c, "entryID")
	if !ok {
		return
	}
	if !h.requireRole(c, tripID, userID, entity.RoleViewer) {
		return
	}
	if h.presence == nil {
		c.JSON(http.StatusOK, gin.H{"editors": []cache.Editor{}})
		return
	}
	editors, err := h.presence.GetAliveEditors(c.Request.Context(), entryID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if editors == nil {
		editors = []cache.Editor{}
	}
	c.JSON(http.StatusOK, gin.H{"editors": editors})
}

// CreateEntry POST /v1/trips/:tripID/entries
func (h *JournalHandler) CreateEntry(c *gin.Context) {
	userID, username, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	tripID, ok := pathID(c, "tripID")
	if !ok {
		return
	}
	if !h.requireRole(c, tripID, userID, entity.RoleEditor) {
		return
	}

	var req struct {
		Title string `json:"title" binding:"required"`
		Text  string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	e := &entity.JournalEntry{
		TripID:         tripID,
		Title:          req.Title,
		Text:           req.Text,
		LastModifiedBy: username,
	}
	if err := h.entries.CreateEntry(c.Request.Context(), e); err != nil {
		if errors.Is(err, store.ErrDuplicateEntry) {
			c.JSON(http.StatusConflict, gin.H{"error": "entry title already exists in this trip"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": e.ID, "tripId": tripID, "title": e.Title, "version": e.EditVersion})
}
