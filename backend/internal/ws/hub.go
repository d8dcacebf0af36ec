package ws

import (
	"sync"

	"tripServer/backend/internal/notify"
)

// Hub 行程房间 -> 连接集合
// 房间里存连接而不是 userID：同一个用户可以开多个标签页/设备
type Hub struct {
	mu    sync.RWMutex
	rooms map[uint64]map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[uint64]map[*Conn]struct{})}
}

// 确保 Hub 能接在 Notifier 后面做实时扇出
var _ notify.Broadcaster = (*Hub)(nil)

func (h *Hub) Join(tripID uint64, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[tripID] == nil {
		h.rooms[tripID] = make(map[*Conn]struct{})
	}
	h.rooms[tripID][c] = struct{}{}
}

func (h *Hub) Leave(tripID uint64, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[tripID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, tripID)
		}
	}
}

// BroadcastEntrySaved 某条日志保存成功后通知房间里的所有连接
func (h *Hub) BroadcastEntrySaved(tripID uint64, evt notify.EntryEvent) {
	h.mu.RLock()
	conns := h.rooms[tripID]
	h.mu.RUnlock()
	msg := ServerMessage{
		Type:    "entry_saved",
		TripID:  evt.TripID,
		EntryID: evt.EntryID,
		Editor:  evt.Editor,
		Version: evt.Version,
	}
	for c := range conns {
		c.enqueue(msg)
	}
}
