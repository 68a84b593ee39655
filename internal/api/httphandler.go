package api

import (
	"errors"
	"io"
	"net/http"
	"whitelistbot/internal/types"
	"whitelistbot/internal/whitelist"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

// Handler adapts chat commands delivered over HTTP to the whitelist service. The caller's
// platform identity travels in the x-user-id and x-user-name headers.
type Handler struct {
	Svc *whitelist.Service
}

type commandRequest struct {
	SteamID string `json:"steamid"`
	Name    string `json:"name,omitempty"`
}

type commandResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	SteamID string `json:"steamid,omitempty"`
	Current int    `json:"current,omitempty"`
	Max     int    `json:"max,omitempty"`
}

type listResponse struct {
	Entries  []types.WhitelistEntry `json:"entries"`
	Capacity int                    `json:"capacity"`
}

func NewHandler(svc *whitelist.Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/whitelist/add", h.handleAdd)
	mux.HandleFunc("/whitelist/remove", h.handleRemove)
	mux.HandleFunc("/whitelist", h.handleList)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	caller, req, ok := h.prepare(w, r)
	if !ok {
		return
	}
	res, err := h.Svc.Add(r.Context(), caller, req.SteamID, req.Name)
	h.respond(w, caller, res, err)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	caller, req, ok := h.prepare(w, r)
	if !ok {
		return
	}
	res, err := h.Svc.Remove(r.Context(), caller, req.SteamID)
	h.respond(w, caller, res, err)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := h.Svc.EnsureUser(ctx, caller); err != nil {
		log.WithError(err).WithField("externalID", caller.ExternalID).Error("failed to initialize user")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	entries, err := h.Svc.List(ctx, caller)
	if err != nil {
		log.WithError(err).WithField("externalID", caller.ExternalID).Error("failed to list whitelist")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := writeJSON(w, http.StatusOK, listResponse{Entries: entries, Capacity: h.Svc.Capacity()}); err != nil {
		http.Error(w, "failed to write response", http.StatusInternalServerError)
	}
}

// prepare checks method and identity, decodes the command body and initializes the user.
func (h *Handler) prepare(w http.ResponseWriter, r *http.Request) (whitelist.Identity, commandRequest, bool) {
	var req commandRequest
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return whitelist.Identity{}, req, false
	}
	caller, ok := callerFrom(w, r)
	if !ok {
		return caller, req, false
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return caller, req, false
	}
	defer func() {
		_ = r.Body.Close()
	}()
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return caller, req, false
		}
	}
	if _, err := h.Svc.EnsureUser(r.Context(), caller); err != nil {
		log.WithError(err).WithField("externalID", caller.ExternalID).Error("failed to initialize user")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return caller, req, false
	}
	return caller, req, true
}

func (h *Handler) respond(w http.ResponseWriter, caller whitelist.Identity, res whitelist.Result, err error) {
	if err != nil && errors.Is(err, types.ErrUserNotInitialized) {
		// EnsureUser ran first, so reaching this is a bug in the dispatch path.
		log.WithError(err).WithField("externalID", caller.ExternalID).Error("FAULT: invariant violated")
	}
	body := commandResponse{
		Status:  res.Status(),
		Message: res.Message(),
		SteamID: res.SteamID,
	}
	if res.Kind == whitelist.RejectedCapacity {
		body.Current, body.Max = res.Current, res.Max
	}
	if err := writeJSON(w, statusCode(res.Kind), body); err != nil {
		http.Error(w, "failed to write response", http.StatusInternalServerError)
	}
}

func statusCode(k whitelist.Kind) int {
	switch k {
	case whitelist.Accepted, whitelist.Removed:
		return http.StatusOK
	case whitelist.RejectedFormat, whitelist.RejectedEmptyInput:
		return http.StatusBadRequest
	case whitelist.RejectedDuplicate, whitelist.RejectedCapacity:
		return http.StatusConflict
	case whitelist.RejectedNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func callerFrom(w http.ResponseWriter, r *http.Request) (whitelist.Identity, bool) {
	id := r.Header.Get(types.UserIDHdrName)
	if id == "" {
		http.Error(w, "missing "+types.UserIDHdrName, http.StatusUnauthorized)
		return whitelist.Identity{}, false
	}
	return whitelist.Identity{ExternalID: id, DisplayName: r.Header.Get(types.UserNameHdrName)}, true
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}
