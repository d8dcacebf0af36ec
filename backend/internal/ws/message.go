package ws

// 客户端入站消息：订阅行程房间、心跳刷新编辑在场状态
type ClientMessage struct {
	Type    string `json:"type"`
	TripID  uint64 `json:"tripId,omitempty"`
	EntryID uint64 `json:"entryId,omitempty"`
}

type ServerMessage struct {
	Type    string `json:"type"`
	TripID  uint64 `json:"tripId,omitempty"`
	EntryID uint64 `json:"entryId,omitempty"`
	Editor  string `json:"editor,omitempty"`
	Version uint64 `json:"version,omitempty"`
	Content string `json:"content,omitempty"`
}
