// Package live carries the realtime editing channel: one room per chapter,
// presence tracking, and fan-out of content, comment, and status events.
package live

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"gradportal/api/internal/logger"
)

const (
	UpdateType         = "UPDATE"          // Chapter content changed
	CursorType         = "CURSOR"          // User moved their cursor
	PresenceUpdateType = "PRESENCE_UPDATE" // A user joined or left
	CommentType        = "COMMENT"         // New comment added
	CommentUpdateType  = "COMMENT_UPDATE"  // Comment resolved
	CommentDeleteType  = "COMMENT_DELETE"  // Comment deleted
	StatusType         = "STATUS"          // Chapter review status changed

	RoleWriter   = "writer"
	RoleReviewer = "reviewer"
	RoleReader   = "reader"
)

type WSMessage struct {
	Type      string          `json:"type"`
	ChapterID string          `json:"chapter_id"`
	UserID    string          `json:"user_id"`
	Payload   json.RawMessage `json:"payload"`
}

type UserStatus struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CursorPos int       `json:"cursor_pos"`
	LastSeen  time.Time `json:"last_seen"`
}

// ContentSink receives content updates flowing through the hub. Save is
// called per update; Flush when the last client leaves a room.
type ContentSink interface {
	Save(chapterID string, content []byte)
	Flush(chapterID string)
}

type Hub struct {
	Rooms      map[string]map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client
	db         *sql.DB
	sink       ContentSink

	// Latest content per open room so late joiners get the current state.
	ChapterCache map[string][]byte
	mu           sync.Mutex
	Presence     map[string]map[string]UserStatus // chapterID -> userID -> status
}

func NewHub(db *sql.DB, sink ContentSink) *Hub {
	return &Hub{
		Rooms:        make(map[string]map[*Client]bool),
		Broadcast:    make(chan WSMessage),
		Register:     make(chan *Client),
		Unregister:   make(chan *Client),
		db:           db,
		sink:         sink,
		ChapterCache: make(map[string][]byte),
		Presence:     make(map[string]map[string]UserStatus),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.ChapterID] == nil {
				h.Rooms[client.ChapterID] = make(map[*Client]bool)
				h.Presence[client.ChapterID] = make(map[string]UserStatus)

				// First user in, load the chapter content from the database.
				var content []byte
				err := h.db.QueryRow("SELECT content FROM chapters WHERE id = $1", client.ChapterID).Scan(&content)
				if err != nil {
					logger.Sugar.Errorf("failed to load chapter %s: %v", client.ChapterID, err)
					content = []byte(`{"type":"doc","content":[]}`)
				}
				h.ChapterCache[client.ChapterID] = content
			}
			h.Rooms[client.ChapterID][client] = true
			h.Presence[client.ChapterID][client.UserID] = UserStatus{
				UserID:   client.UserID,
				Name:     client.Name,
				Role:     client.Role,
				LastSeen: time.Now(),
			}
			currentContent := h.ChapterCache[client.ChapterID]
			h.mu.Unlock()

			// Send the full chapter state to the client who just joined.
			initialMsg, _ := json.Marshal(WSMessage{Type: UpdateType, ChapterID: client.ChapterID, Payload: json.RawMessage(currentContent)})
			client.Send <- initialMsg

			h.broadcastPresenceUpdate(client.ChapterID)

		case client := <-h.Unregister:
			h.dropClient(client)

		case msg := <-h.Broadcast:
			h.mu.Lock()
			if msg.Type == UpdateType {
				h.ChapterCache[msg.ChapterID] = msg.Payload
				if h.sink != nil {
					h.sink.Save(msg.ChapterID, msg.Payload)
				}
			}

			payload, err := json.Marshal(msg)
			if err != nil {
				logger.Sugar.Errorf("error marshalling broadcast message: %v", err)
				h.mu.Unlock()
				continue
			}

			// Everyone in the room except the original sender.
			clientsToSend := make([]*Client, 0, len(h.Rooms[msg.ChapterID]))
			for client := range h.Rooms[msg.ChapterID] {
				if client.UserID != msg.UserID {
					clientsToSend = append(clientsToSend, client)
				}
			}
			h.mu.Unlock()

			for _, client := range clientsToSend {
				select {
				case client.Send <- payload:
				default:
					// Full send buffer means the client is lagging. Drop it
					// inline: Unregister is consumed by this goroutine, so
					// sending to it from here would block forever.
					logger.Sugar.Warnf("client %s send buffer full, dropping", client.UserID)
					h.dropClient(client)
				}
			}
		}
	}
}

// dropClient removes a client from its room, closing its send channel and
// flushing the room when it empties. A client that was already dropped is a
// no-op, so the readPump's deferred unregister is safe after an inline drop.
func (h *Hub) dropClient(client *Client) {
	chapterID := client.ChapterID

	h.mu.Lock()
	dropped := false
	if _, ok := h.Rooms[chapterID][client]; ok {
		dropped = true
		delete(h.Rooms[chapterID], client)
		delete(h.Presence[chapterID], client.UserID)
		close(client.Send)

		if len(h.Rooms[chapterID]) == 0 {
			delete(h.Rooms, chapterID)
			delete(h.Presence, chapterID)
			delete(h.ChapterCache, chapterID)
			if h.sink != nil {
				h.sink.Flush(chapterID)
			}
			logger.Sugar.Infof("closed empty room %s", chapterID)
		}
	}
	roomAlive := h.Rooms[chapterID] != nil
	h.mu.Unlock()

	if dropped && roomAlive {
		h.broadcastPresenceUpdate(chapterID)
	}
}

// Publish pushes a server-originated event into a room, e.g. a comment
// created through the HTTP API or a review status change. An empty userID
// delivers to every client in the room.
func (h *Hub) Publish(chapterID, msgType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Sugar.Errorf("error marshalling publish payload: %v", err)
		return
	}
	h.Broadcast <- WSMessage{Type: msgType, ChapterID: chapterID, Payload: raw}
}

// CloseChapter disconnects every client in a room, e.g. after approval locks
// the chapter for editing.
func (h *Hub) CloseChapter(chapterID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.ChapterCache, chapterID)
	delete(h.Presence, chapterID)

	if clients, ok := h.Rooms[chapterID]; ok {
		for client := range clients {
			client.Conn.Close() // readPump exits and unregisters
		}
		delete(h.Rooms, chapterID)
	}
}

func (h *Hub) broadcastPresenceUpdate(chapterID string) {
	var userStatuses []UserStatus
	var clientsToSend []*Client

	h.mu.Lock()
	if _, ok := h.Presence[chapterID]; ok {
		userStatuses = make([]UserStatus, 0, len(h.Presence[chapterID]))
		for _, status := range h.Presence[chapterID] {
			userStatuses = append(userStatuses, status)
		}

		clientsToSend = make([]*Client, 0, len(h.Rooms[chapterID]))
		for client := range h.Rooms[chapterID] {
			clientsToSend = append(clientsToSend, client)
		}
	}
	h.mu.Unlock()

	if len(clientsToSend) == 0 {
		return
	}

	payload, err := json.Marshal(userStatuses)
	if err != nil {
		logger.Sugar.Errorf("error marshalling presence broadcast: %v", err)
		return
	}
	broadcastPayload, _ := json.Marshal(WSMessage{Type: PresenceUpdateType, ChapterID: chapterID, Payload: payload})

	for _, client := range clientsToSend {
		select {
		case client.Send <- broadcastPayload:
		default:
			logger.Sugar.Warnf("client %s send buffer full during presence update", client.UserID)
		}
	}
}
