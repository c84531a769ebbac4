package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/voxsched/voxsched/pkg/call"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Registry *call.Registry
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK          bool `json:"ok"`
		ActiveCalls int  `json:"active_calls"`
	}

	active := 0
	if h.Registry != nil {
		active = h.Registry.Len()
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(readyResp{OK: true, ActiveCalls: active})
}
