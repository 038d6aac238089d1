package api

import (
	"errors"
	"net/http"

	"OddsSync/internal/clock"
	"OddsSync/internal/interfaces"
	"OddsSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// OddsHandler 提供给前端的赔率读取接口（只读快照，永不触发提供商请求）
type OddsHandler struct {
	oddsService *service.OddsService
	clk         clock.Clock
	logger      *logrus.Logger
}

// NewOddsHandler 创建OddsHandler
func NewOddsHandler(oddsService *service.OddsService, clk clock.Clock, logger *logrus.Logger) *OddsHandler {
	return &OddsHandler{oddsService: oddsService, clk: clk, logger: logger}
}

// ListFeeds Feed列表及调度状态
// GET /api/feeds
func (h *OddsHandler) ListFeeds(c *gin.Context) {
	feeds, err := h.oddsService.ListFeeds(c.Request.Context(), h.clk.Now())
	if err != nil {
		h.logger.WithError(err).Error("查询Feed列表失败")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "feeds": feeds})
}

// ListAllOdds 全部Feed的当前可读数据集（带兜底语义）
// GET /api/odds
func (h *OddsHandler) ListAllOdds(c *gin.Context) {
	results, err := h.oddsService.ListAllOdds(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("查询全量赔率失败")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": results})
}

// GetFeedOdds 单个Feed的当前可读数据集（带兜底语义）
// GET /api/odds/:feed
func (h *OddsHandler) GetFeedOdds(c *gin.Context) {
	feedKey := c.Param("feed")
	result, err := h.oddsService.GetFeedOdds(c.Request.Context(), feedKey)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Feed不存在: " + feedKey})
			return
		}
		h.logger.WithError(err).WithField("feed_key", feedKey).Error("查询Feed赔率失败")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}
