package handler

import (
	"net/http"

	"github.com/wyfcoding/clusterd/middleware"
	"github.com/wyfcoding/clusterd/response"
	"github.com/wyfcoding/clusterd/service"

	"github.com/gin-gonic/gin"
)

// signup 接受表单或 JSON。
func (h *Handler) signup(c *gin.Context) {
	var req credentials
	if !bind(c, &req, formOrJSON(c)) {
		return
	}
	_, pair, err := h.users.Signup(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.writeTokens(c, http.StatusCreated, pair)
}

func (h *Handler) login(c *gin.Context) {
	var req credentials
	if !bind(c, &req, formOrJSON(c)) {
		return
	}
	_, pair, err := h.users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.writeTokens(c, http.StatusOK, pair)
}

func (h *Handler) refresh(c *gin.Context) {
	token, _ := c.Cookie(refreshCookie)
	pair, err := h.users.Refresh(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.writeTokens(c, http.StatusOK, pair)
}

func (h *Handler) getUser(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), middleware.MustGetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toUserRead(u))
}

func (h *Handler) updateUserFull(c *gin.Context) {
	var req userUpdateFull
	if !bind(c, &req) {
		return
	}
	u, err := h.users.UpdateFull(c.Request.Context(), middleware.MustGetUserID(c), req.Username, req.FullName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toUserRead(u))
}

func (h *Handler) updateUserPartial(c *gin.Context) {
	var req userUpdatePartial
	if !bind(c, &req) {
		return
	}
	u, err := h.users.UpdatePartial(c.Request.Context(), middleware.MustGetUserID(c),
		service.UserUpdate{Username: req.Username, FullName: req.FullName})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toUserRead(u))
}

func (h *Handler) deleteUser(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), middleware.MustGetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	c.SetCookie(refreshCookie, "", -1, "/", "", h.opts.CookieSecure, true)
	response.NoContent(c)
}
