package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const eventWriteTimeout = 5 * time.Second

// Events отдаёт уведомления шагов по websocket, по одному JSON в
// текстовом кадре. Фильтр ?step= ограничивает поток одним шагом.
// GET /api/v1/events
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		Unavailable(w, "event stream is not configured")
		return
	}
	step := r.URL.Query().Get("step")

	// Подписка до рукопожатия: клиент, получивший ответ, уже ничего
	// не пропустит.
	events, unsubscribe := h.events.Subscribe()
	defer unsubscribe()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// Клиент ничего не присылает; CloseRead обрабатывает управляющие
	// кадры и отменяет ctx при закрытии соединения.
	ctx := conn.CloseRead(r.Context())

	h.logger.Debug("event subscriber connected", "step", step, "remote_addr", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case n, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "stream closed")
				return
			}
			if step != "" && n.Step != step {
				continue
			}
			data, err := json.Marshal(n)
			if err != nil {
				h.logger.Error("failed to encode notification", "error", err)
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err = conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.Debug("event subscriber gone", "error", err)
				return
			}
		}
	}
}
