package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"licensedesk/internal/domain"
)

const writeTimeout = 5 * time.Second

// Hub раздает события выдачи подключенным UI по websocket.
// Все операции над множеством клиентов сериализованы через каналы
// в одной горутине Run - отдельных замков на clients нет.
type Hub struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan []byte, 64),
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// PublishLicenseIssued реализует domain.EventPublisher.
// Неблокирующая отправка: если фид захлебнулся, событие дешевле потерять,
// чем тормозить выдачу - записи и так уже в БД.
func (h *Hub) PublishLicenseIssued(event domain.LicenseIssued) {
	payload, err := json.Marshal(wsEvent{
		Type:     "license_issued",
		Keys:     event.Keys,
		Count:    event.Count,
		IssuedAt: event.IssuedAt,
	})
	if err != nil {
		h.logger.Error("failed to marshal event", slog.String("err", err.Error()))
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("event feed overloaded, dropping event")
	}
}

type wsEvent struct {
	Type     string    `json:"type"`
	Keys     []string  `json:"keys"`
	Count    int       `json:"count"`
	IssuedAt time.Time `json:"issued_at"`
}

func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("event hub started")
	for {
		select {
		case conn := <-h.register:
			h.clients[conn] = true
			h.logger.Info("feed client connected", slog.Int("clients", len(h.clients)))

		case conn := <-h.unregister:
			if h.clients[conn] {
				delete(h.clients, conn)
				_ = conn.Close()
			}

		case payload := <-h.broadcast:
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					delete(h.clients, conn)
					_ = conn.Close()
				}
			}

		case <-ctx.Done():
			for conn := range h.clients {
				_ = conn.Close()
			}
			h.logger.Info("event hub stopped")
			return
		}
	}
}
