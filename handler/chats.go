package handler

import (
	"net/http"

	"github.com/wyfcoding/clusterd/middleware"
	"github.com/wyfcoding/clusterd/response"
	"github.com/wyfcoding/clusterd/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createChat(c *gin.Context) {
	var req chatCreate
	if !bind(c, &req) {
		return
	}
	chat, err := h.chats.Create(c.Request.Context(), middleware.MustGetUserID(c), req.Title, req.Description)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithStatus(c, http.StatusCreated, toChatRead(chat))
}

func (h *Handler) listChats(c *gin.Context) {
	p, ok := page(c)
	if !ok {
		return
	}
	list, err := h.chats.List(c.Request.Context(), middleware.MustGetUserID(c), p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithPagination(c, mapSlice(list, toChatRead), p.Skip, p.Limit)
}

func (h *Handler) getChat(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	chat, err := h.chats.Get(c.Request.Context(), middleware.MustGetUserID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toChatRead(chat))
}

func (h *Handler) updateChatFull(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req chatUpdateFull
	if !bind(c, &req) {
		return
	}
	chat, err := h.chats.UpdateFull(c.Request.Context(), middleware.MustGetUserID(c), id, req.Title, req.Description)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toChatRead(chat))
}

func (h *Handler) updateChatPartial(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req chatUpdatePartial
	if !bind(c, &req) {
		return
	}
	chat, err := h.chats.UpdatePartial(c.Request.Context(), middleware.MustGetUserID(c), id,
		service.ChatUpdate{Title: req.Title, Description: req.Description})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toChatRead(chat))
}

func (h *Handler) deleteChat(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.chats.Delete(c.Request.Context(), middleware.MustGetUserID(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
