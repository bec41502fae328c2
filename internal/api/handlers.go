package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/cfiore016/go-connect/internal/server"
	"github.com/cfiore016/go-connect/internal/store"
	"github.com/cfiore016/go-connect/internal/types"
)

const maxContentLength = 1000

type SendMessageRequest struct {
	ReceiverId  string `json:"receiver_id"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
}

func (s *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *App) sendMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	content := strings.TrimSpace(req.Content)
	if req.ReceiverId == "" || content == "" {
		errResp := newApiError(http.StatusBadRequest, "receiver and message content are required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if len(content) > maxContentLength {
		errResp := newApiError(http.StatusBadRequest, "message content exceeds maximum length")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if req.ReceiverId == userId {
		errResp := newApiError(http.StatusBadRequest, "you cannot send a message to yourself")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	contentType := types.ContentType(req.ContentType)
	if req.ContentType == "" {
		contentType = types.ContentTypeText
	}
	if !contentType.Valid() {
		errResp := newApiError(http.StatusBadRequest, "invalid content type")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.GetAccountById(req.ReceiverId); err != nil {
		var errResp *ApiError
		if errors.Is(err, store.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.db.CreateMessage(store.CreateMessageParams{
		SenderId:    userId,
		ReceiverId:  req.ReceiverId,
		Content:     content,
		ContentType: contentType,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, messageResponse(msg))
}

// getConversation returns a page of messages with the given peer, oldest
// first, and marks the caller's unread messages from that peer as read.
func (s *App) getConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	peerId := r.URL.Query().Get("user_id")
	if peerId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	page, limit := 1, 50
	var err error
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if page, err = strconv.Atoi(pageStr); err != nil || page < 1 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil || limit < 1 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	messages, err := s.db.ConversationMessages(userId, peerId, page, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// reading the history flips the peer's messages to read, the same
	// side effect the live path gets from explicit mark_read commands
	if _, err := s.db.MarkConversationRead(userId, peerId); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	wireMessages := lo.Map(messages, func(msg store.Message, _ int) types.Message {
		return messageResponse(msg)
	})
	slices.Reverse(wireMessages)

	s.writeJson(w, http.StatusOK, map[string]any{
		"messages": wireMessages,
		"page":     page,
		"limit":    limit,
	})
}

func (s *App) getConversations(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	summaries, err := s.db.Conversations(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversations := make([]types.Conversation, 0, len(summaries))
	for _, summary := range summaries {
		conv := types.Conversation{
			UserId:      summary.PeerId,
			LastMessage: lo.ToPtr(messageResponse(summary.LastMessage)),
			UnreadCount: summary.UnreadCount,
		}

		if peer, err := s.db.GetAccountById(summary.PeerId); err == nil {
			conv.Username = peer.Username
		}

		conversations = append(conversations, conv)
	}

	// most recently active first
	slices.SortFunc(conversations, func(a, b types.Conversation) int {
		return b.LastMessage.CreatedAt.Compare(a.LastMessage.CreatedAt)
	})

	s.writeJson(w, http.StatusOK, map[string]any{
		"conversations": conversations,
	})
}

func (s *App) getUnreadCount(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	count, err := s.db.UnreadCount(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]any{
		"unread_count": count,
	})
}

func (s *App) markMessageRead(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId := r.URL.Query().Get("id")
	if messageId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.db.MarkRead(messageId, userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrAlreadyRead) {
			errResp = newApiError(http.StatusNotFound, "message not found or already read")
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, messageResponse(msg))
}

// serveWs authenticates the websocket handshake and hands the connection
// to the chat server. The credential may arrive in the Authorization
// header or the token query parameter; each rejection reason is reported
// distinctly and never downgraded to an anonymous session.
func (s *App) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, err := s.tokens.VerifyToken(bearerToken(r))
	if err != nil {
		errResp := newApiError(http.StatusUnauthorized, err.Error())
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	account, err := s.db.GetAccountById(userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, store.ErrNotFound) {
			errResp = newApiError(http.StatusUnauthorized, "user not found")
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !account.IsActive {
		errResp := newApiError(http.StatusForbidden, "user account is inactive")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(uuid.NewString(), userResponse(account), conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}

func messageResponse(msg store.Message) types.Message {
	return types.Message{
		Id:          msg.Id,
		SenderId:    msg.SenderId,
		ReceiverId:  msg.ReceiverId,
		Content:     msg.Content,
		ContentType: msg.ContentType,
		Read:        msg.Read,
		ReadAt:      msg.ReadAt,
		CreatedAt:   msg.CreatedAt,
	}
}
