package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tripServer/backend/internal/cache"
	"tripServer/backend/internal/entity"
)

// MembershipChecker 订阅房间前的成员校验，由 store.MembershipStore 实现
type MembershipChecker interface {
	GetRole(ctx context.Context, tripID, userID uint64) (entity.Role, error)
}

type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	tripID   uint64 // 当前订阅的行程，0 = 未订阅
	userID   uint64
	username string
	send     chan ServerMessage

	// hub 广播与连接关闭并发，send 的关闭必须和写入互斥
	mu     sync.Mutex
	closed bool

	members  MembershipChecker
	presence cache.EditorPresence
}

func newConn(ws *websocket.Conn, hub *Hub, userID uint64, username string, members MembershipChecker, presence cache.EditorPresence) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		userID:   userID,
		username: username,
		send:     make(chan ServerMessage, 32),
		members:  members,
		presence: presence,
	}
}

func (c *Conn) enqueue(msg ServerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		// 队列满了就丢，通知消息不要求必达
	}
}

// closeSend 关闭发送通道让写循环退出，此后 enqueue 静默丢弃
// 必须在连接离开所有房间之后调用
func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Conn) readLoop(ctx context.Context) {
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			log.Printf("ws read error (user=%d trip=%d): %v", c.userID, c.tripID, err)
			return
		}
		switch msg.Type {
		case "subscribe":
			// 只有行程成员能进房间
			if _, err := c.members.GetRole(ctx, msg.TripID, c.userID); err != nil {
				c.enqueue(ServerMessage{Type: "error", Content: "NOT_A_MEMBER"})
				continue
			}
			if c.tripID != 0 && c.tripID != msg.TripID {
				c.hub.Leave(c.tripID, c)
			}
			c.tripID = msg.TripID
			c.hub.Join(c.tripID, c)
			c.enqueue(ServerMessage{Type: "subscribed", TripID: c.tripID})

		case "heartbeat":
			// 心跳顺带刷新"正在编辑"的逻辑 TTL
			if msg.EntryID != 0 && c.presence != nil {
				if err := c.presence.AddEditor(ctx, msg.EntryID, c.userID, c.username, 600*time.Second); err != nil {
					log.Printf("refresh editor presence error: %v", err)
				}
			}
			c.enqueue(ServerMessage{Type: "feedback", Content: "heartbeat received"})

		case "unsubscribe":
			if c.tripID != 0 {
				c.hub.Leave(c.tripID, c)
				c.tripID = 0
			}

		default:
			c.enqueue(ServerMessage{Type: "ignored", Content: "unknown message type"})
		}
	}
}

func (c *Conn) writeLoop() {
	for msg := range c.send {
		_ = c.ws.WriteJSON(msg)
	}
}
