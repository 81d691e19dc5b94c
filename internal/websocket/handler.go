package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// Handler returns an HTTP handler that upgrades connections and runs
// them as hub clients until they disconnect.
func Handler(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // same-device UI shells connect from arbitrary origins
		})
		if err != nil {
			logger.Error("websocket accept", "error", err)
			return
		}

		NewClient(hub, conn).Run(r.Context())
	}
}
