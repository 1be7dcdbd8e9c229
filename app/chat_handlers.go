package skillswap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/skillswap/skillswap/core"
	"github.com/skillswap/skillswap/store"
)

type contextKey string

const identityKey contextKey = "identity"

// IdentityMiddleware resolves the caller's identity the same way the
// socket gateway does: a Bearer token in verified mode, a bare X-User-Id
// header in claimed mode.
func IdentityMiddleware(authenticator core.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			payload := core.AuthPayload{
				UserID: r.Header.Get("X-User-Id"),
			}
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				payload.Token = strings.TrimPrefix(h, "Bearer ")
			}

			userID, err := authenticator.Authenticate(r.Context(), payload)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), identityKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFromRequest(r *http.Request) string {
	userID, _ := r.Context().Value(identityKey).(string)
	return userID
}

// ChatHandler serves the request/response side of the chat surface: the
// durable history reconnecting clients reconcile against, and conversation
// metadata. The live path never goes through here.
type ChatHandler struct {
	chatStore store.ChatStore
	presence  core.Presence
}

func NewChatHandler(chatStore store.ChatStore, presence core.Presence) *ChatHandler {
	return &ChatHandler{chatStore: chatStore, presence: presence}
}

type CreateChatPayload struct {
	Participants []string `json:"participants" validate:"required,min=2"`
}

type CreateChatResponse struct {
	ID string `json:"id"`
}

func (h *ChatHandler) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	var payload CreateChatPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid input")
		return
	}
	r.Body.Close()

	if err := validate.Struct(payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid input")
		return
	}

	id := uuid.NewString()
	if err := h.chatStore.CreateChat(r.Context(), id, payload.Participants); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to create chat")
		return
	}

	writeJSON(w, http.StatusCreated, CreateChatResponse{ID: id})
}

func (h *ChatHandler) GetChatHandler(w http.ResponseWriter, r *http.Request) {
	chat, err := h.chatStore.Chat(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		if errors.Is(err, store.ErrChatNotFound) {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to load chat")
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *ChatHandler) GetChatMessagesHandler(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.chatStore.Messages(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []core.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *ChatHandler) GetMyChatsHandler(w http.ResponseWriter, r *http.Request) {
	chats, err := h.chatStore.ChatsByParticipant(r.Context(), IdentityFromRequest(r))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to load chats")
		return
	}
	if chats == nil {
		chats = []store.Chat{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *ChatHandler) GetPresenceHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.presence.Snapshot(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to load presence")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, apiError{Code: code, Message: message})
}
