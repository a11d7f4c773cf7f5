package handler

import (
	"net/http"

	"github.com/wyfcoding/clusterd/middleware"
	"github.com/wyfcoding/clusterd/response"
	"github.com/wyfcoding/clusterd/service"

	"github.com/gin-gonic/gin"
)

// fit 校验通过后立即返回 202，训练在后台完成，可通过 /kmeans/:id/status 查看进度。
func (h *Handler) fit(c *gin.Context) {
	var req fitRequest
	if !bind(c, &req) {
		return
	}
	cfg, err := req.config()
	if err != nil {
		response.Error(c, err)
		return
	}
	data, err := h.kmeans.Fit(c.Request.Context(), middleware.MustGetUserID(c), service.FitRequest{
		ChatID:      req.ChatID,
		Description: req.Description,
		Config:      cfg,
		X:           matrix(req.X),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithStatus(c, http.StatusAccepted, fitAccepted{Status: "Fit started", KmeansDataID: data.ID})
}

func (h *Handler) listKmeans(c *gin.Context) {
	p, ok := page(c)
	if !ok {
		return
	}
	list, err := h.kmeans.List(c.Request.Context(), middleware.MustGetUserID(c), p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithPagination(c, mapSlice(list, toKmeansDataRead), p.Skip, p.Limit)
}

// getCentroids 训练结果历史，最近的在前。
func (h *Handler) getCentroids(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, ok := page(c)
	if !ok {
		return
	}
	list, err := h.kmeans.Centroids(c.Request.Context(), middleware.MustGetUserID(c), id, p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithPagination(c, mapSlice(list, toCentroidRead), p.Skip, p.Limit)
}

func (h *Handler) getKmeansStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	data, err := h.kmeans.Get(c.Request.Context(), middleware.MustGetUserID(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toKmeansDataRead(data))
}

func (h *Handler) predict(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req predictRequest
	if !bind(c, &req) {
		return
	}
	labels, err := h.kmeans.Predict(c.Request.Context(), middleware.MustGetUserID(c), id, matrix(req.X))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, predictResponse{KmeansDataID: id, Labels: labels})
}

func (h *Handler) deleteKmeans(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.kmeans.Delete(c.Request.Context(), middleware.MustGetUserID(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
