package httpapi

import (
	"net/http"
	"time"

	"tmwatch/internal/events"
)

type Deps struct {
	Loop    StatusSource
	Audit   EventSource // nil disables /events
	Hub     *events.Hub // nil disables /stream
	Started time.Time
}

func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	hh := HealthHandler{Started: d.Started}
	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hh.Health,
	}))

	sh := StatusHandler{Loop: d.Loop}
	mux.HandleFunc("/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sh.Status,
	}))

	eh := EventsHandler{Audit: d.Audit}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.List,
	}))

	st := StreamHandler{Hub: d.Hub}
	mux.HandleFunc("/stream", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: st.Stream,
	}))

	return mux
}

// NewHandler is the mux wrapped in the standard middleware chain.
func NewHandler(d Deps) http.Handler {
	return Chain(NewMux(d), RequestID, Recover, AccessLog)
}

func methodMux(m map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h, ok := m[r.Method]; ok {
			h(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
