package live

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"gradportal/api/internal/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS for websockets is enforced at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	ChapterID string
	UserID    string
	Name      string
	Role      string
	Send      chan []byte
}

// ServeWs upgrades the connection and joins the chapter room. The role is
// server-authoritative: only the project's student may push content updates,
// only the supervisor may act as reviewer, everyone else observes.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, chapterID, userID, userName string) {
	var studentID, supervisorID string
	err := hub.db.QueryRow(`
		SELECT p.student_id, p.supervisor_id
		FROM chapters c
		JOIN projects p ON p.id = c.project_id
		WHERE c.id = $1`, chapterID).Scan(&studentID, &supervisorID)
	if err == sql.ErrNoRows {
		logger.Sugar.Warnf("connection rejected: chapter %s not found", chapterID)
		http.Error(w, "chapter not found", http.StatusNotFound)
		return
	} else if err != nil {
		logger.Sugar.Errorf("database error resolving chapter role: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	role := RoleReader
	switch userID {
	case studentID:
		role = RoleWriter
	case supervisorID:
		role = RoleReviewer
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		Hub:       hub,
		Conn:      conn,
		ChapterID: chapterID,
		UserID:    userID,
		Name:      userName,
		Role:      role,
		Send:      make(chan []byte, 256),
	}

	client.Hub.Register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, rawMessage, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			logger.Sugar.Errorf("error unmarshalling message: %v", err)
			continue
		}

		// Overwrite with server-authoritative values to prevent spoofing.
		msg.ChapterID = c.ChapterID
		msg.UserID = c.UserID

		if msg.Type == UpdateType && c.Role != RoleWriter {
			logger.Sugar.Warnf("permission denied: user %s (role %s) tried to edit chapter %s", c.UserID, c.Role, c.ChapterID)
			continue
		}

		c.Hub.Broadcast <- msg
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.Send:
			c.Conn.WriteMessage(websocket.TextMessage, message)
		case <-ticker.C:
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
