package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"project_associa/internal/entities"

	"github.com/gin-gonic/gin"
)

// attendantScope extracts the attendant and association ids set by AuthRequired.
func attendantScope(c *gin.Context) (userID, associationID int) {
	return c.GetInt(ctxUserID), c.GetInt(ctxAssociationID)
}

func conversationID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) ListConversations(c *gin.Context) {
	_, associationID := attendantScope(c)
	status := entities.ConversationStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}
	convs, err := h.Attendants.List(c.Request.Context(), associationID, status)
	if err != nil {
		status, msg := errorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *Handler) ListMessages(c *gin.Context) {
	_, associationID := attendantScope(c)
	id, ok := conversationID(c)
	if !ok {
		return
	}
	msgs, err := h.Attendants.Messages(c.Request.Context(), associationID, id)
	if err != nil {
		status, msg := errorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

type conversationAction func(ctx context.Context, associationID, conversationID, attendantID int) (*entities.Conversation, error)

func (h *Handler) transition(c *gin.Context, action conversationAction) {
	userID, associationID := attendantScope(c)
	id, ok := conversationID(c)
	if !ok {
		return
	}
	conv, err := action(c.Request.Context(), associationID, id, userID)
	if err != nil {
		status, msg := errorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) ClaimConversation(c *gin.Context) {
	h.transition(c, h.Attendants.Claim)
}

func (h *Handler) RequeueConversation(c *gin.Context) {
	h.transition(c, h.Attendants.Requeue)
}

func (h *Handler) CloseConversation(c *gin.Context) {
	h.transition(c, h.Attendants.Close)
}

func (h *Handler) SendMessage(c *gin.Context) {
	userID, associationID := attendantScope(c)
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var payload struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	text := strings.TrimSpace(SanitizeString(payload.Text))
	if !ValidateLength(text, 1, MaxMessageLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message length"})
		return
	}

	msg, err := h.Attendants.Send(c.Request.Context(), associationID, id, userID, text)
	if err != nil {
		status, errMsg := errorStatus(err)
		c.JSON(status, gin.H{"error": errMsg})
		return
	}
	c.JSON(http.StatusCreated, msg)
}
