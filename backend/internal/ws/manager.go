package ws

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tripServer/backend/internal/cache"
)

// 允许本地开发环境的来源；有些环境不发送 Origin 或为 "null"
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type Manager struct {
	hub      *Hub
	members  MembershipChecker
	presence cache.EditorPresence
}

func NewManager(hub *Hub, members MembershipChecker, presence cache.EditorPresence) *Manager {
	return &Manager{hub: hub, members: members, presence: presence}
}

// Connect 升级连接后进入读循环（阻塞至连接关闭）
// userId/username 由鉴权中间件写入 gin.Context
func (m *Manager) Connect(c *gin.Context) {
	userID := c.GetUint64("userId")
	username := c.GetString("username")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	wsConn := newConn(conn, m.hub, userID, username, m.members, m.presence)

	// 先起写循环，保证 welcome 与后续消息有人消费
	go wsConn.writeLoop()
	wsConn.enqueue(ServerMessage{Type: "welcome"})

	wsConn.readLoop(c.Request.Context())

	// 先退房再关通道：反过来会让并发广播打到已关闭的通道上
	if wsConn.tripID != 0 {
		m.hub.Leave(wsConn.tripID, wsConn)
	}
	wsConn.closeSend()
}
