package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hqanh/baucua-backend/internal/hub"
)

// State returns a point-in-time snapshot of the whole aggregate. Debug aid;
// the authoritative feed is the gameState push on the socket.
func State(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan hub.Snapshot, 1)
		h.Inbox() <- hub.GetState{Reply: reply}

		select {
		case snap := <-reply:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(snap.State)
		case <-time.After(2 * time.Second):
			http.Error(w, "state unavailable", http.StatusServiceUnavailable)
		}
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
