package api

import (
	"errors"
	"net/http"

	"OddsSync/internal/clock"
	"OddsSync/internal/interfaces"
	"OddsSync/internal/quota"
	"OddsSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ControlHandler 调度器控制面：启停/手动更新/重置/状态查询
type ControlHandler struct {
	scheduler   *service.Scheduler
	ledger      *quota.Ledger
	oddsService *service.OddsService
	clk         clock.Clock
	logger      *logrus.Logger
}

// NewControlHandler 创建ControlHandler
func NewControlHandler(scheduler *service.Scheduler, ledger *quota.Ledger, oddsService *service.OddsService, clk clock.Clock, logger *logrus.Logger) *ControlHandler {
	return &ControlHandler{
		scheduler:   scheduler,
		ledger:      ledger,
		oddsService: oddsService,
		clk:         clk,
		logger:      logger,
	}
}

// controlRequest POST /control 请求体
type controlRequest struct {
	Action string `json:"action" binding:"required"` // start/stop/force-update/reset
	Feed   string `json:"feed"`                      // force-update时可选，指定单个Feed
}

// Status 状态查询接口
// GET /status → 配额使用情况 + 全量Feed调度快照
func (h *ControlHandler) Status(c *gin.Context) {
	stats, err := h.ledger.Stats(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("查询配额统计失败")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	feeds, err := h.oddsService.ListFeeds(c.Request.Context(), h.clk.Now())
	if err != nil {
		h.logger.WithError(err).Error("查询Feed状态失败")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"running": h.scheduler.Running(),
		"quota":   stats,
		"feeds":   feeds,
	})
}

// Control 控制指令接口
// POST /control {"action": "start|stop|force-update|reset", "feed": "可选"}
// 未知action返回400，不做静默no-op
func (h *ControlHandler) Control(c *gin.Context) {
	var req controlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "请求体不合法: " + err.Error()})
		return
	}

	switch req.Action {
	case "start":
		h.scheduler.Start()
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "调度服务已启动"})
	case "stop":
		h.scheduler.Stop()
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "调度服务已停止"})
	case "force-update":
		h.forceUpdate(c, req.Feed)
	case "reset":
		if err := h.scheduler.Reset(c.Request.Context()); err != nil {
			h.logger.WithError(err).Error("重置调度状态失败")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "调度状态已重置（配额计数保持不变）"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "未知action: " + req.Action})
	}
}

// Teardown 停止并重置
// DELETE /control
func (h *ControlHandler) Teardown(c *gin.Context) {
	h.scheduler.Stop()
	if err := h.scheduler.Reset(c.Request.Context()); err != nil {
		h.logger.WithError(err).Error("重置调度状态失败")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "调度服务已停止并重置"})
}

// forceUpdate 手动更新：绕过到期时间门，幂等门和配额门仍然生效
func (h *ControlHandler) forceUpdate(c *gin.Context, feedKey string) {
	if feedKey == "" {
		outcomes, err := h.scheduler.ForceUpdateAll(c.Request.Context())
		if err != nil {
			h.logger.WithError(err).Error("手动全量更新失败")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "outcomes": outcomes})
		return
	}

	outcome, err := h.scheduler.ForceUpdate(c.Request.Context(), feedKey)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Feed不存在: " + feedKey})
			return
		}
		h.logger.WithError(err).WithField("feed_key", feedKey).Error("手动更新失败")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "outcome": outcome})
}
