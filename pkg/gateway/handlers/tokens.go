package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/voxsched/voxsched/pkg/auth"
	"github.com/voxsched/voxsched/pkg/core"
	"github.com/voxsched/voxsched/pkg/gateway/config"
	"github.com/voxsched/voxsched/pkg/gateway/mw"
)

// TokensHandler handles PUT /api/users/{email}/tokens: store the OAuth
// credentials the booking pipeline uses on the host's behalf.
type TokensHandler struct {
	Tokens *auth.Manager
	Logger *slog.Logger
}

type putTokensRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Expiry       int64  `json:"expiry"`
}

func (h TokensHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodPut {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("method not allowed"), http.StatusMethodNotAllowed)
		return
	}

	email := tokensPathEmail(r.URL.Path)
	if !config.ValidEmail(email) {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam("email is not a valid address", "email"), http.StatusBadRequest)
		return
	}

	var req putTokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("invalid JSON body"), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam("accessToken is required", "accessToken"), http.StatusBadRequest)
		return
	}

	rec := &auth.Record{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		Expiry:       req.Expiry,
	}
	if err := h.Tokens.Put(r.Context(), email, rec); err != nil {
		h.Logger.Error("token store write failed", "request_id", reqID, "email", email, "err", err)
		writeCoreErrorJSON(w, reqID, core.NewAPIError("failed to store tokens"), http.StatusInternalServerError)
		return
	}

	h.Logger.Info("stored tokens", "request_id", reqID, "email", email)
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

// tokensPathEmail extracts the email from /api/users/{email}/tokens.
func tokensPathEmail(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/users/")
	if !ok {
		return ""
	}
	email, ok := strings.CutSuffix(rest, "/tokens")
	if !ok || strings.Contains(email, "/") {
		return ""
	}
	return strings.TrimSpace(email)
}
