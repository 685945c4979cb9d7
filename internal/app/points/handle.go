package points

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"server-rewards-app/internal/dao"
	"server-rewards-app/internal/model"
	"server-rewards-app/internal/pkg/generr"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handler exposes the accrual engine over HTTP.
type Handler struct {
	engine *Engine
	tiers  TierResolver
	gdb    *gorm.DB
	rules  Rules
}

func NewHandler(engine *Engine, tiers TierResolver, gdb *gorm.DB, rules Rules) *Handler {
	return &Handler{engine: engine, tiers: tiers, gdb: gdb, rules: rules}
}

func (h *Handler) Credit(c *gin.Context) {
	req := struct {
		UserID int64  `json:"user_id" form:"user_id" binding:"required"` // 用户ID
		NodeID string `json:"node_id" form:"node_id" binding:"required,max=64"` // 内容ID
		Action string `json:"action" form:"action" binding:"required"`   // 行为类型
	}{}

	err := c.ShouldBind(&req)
	if err != nil {
		log.Errorf("err: %+v", errors.Wrap(err, "should bind"))
		c.JSON(http.StatusBadRequest, generr.ParseParam)
		return
	}

	res, err := h.engine.CreditPoints(c.Request.Context(), req.UserID, req.NodeID, model.ActionType(req.Action), h.rules)
	if err != nil {
		h.fail(c, errors.Wrap(err, "credit points"))
		return
	}
	c.JSON(http.StatusOK, generr.Success(res))
}

func (h *Handler) Remaining(c *gin.Context) {
	req := struct {
		UserID int64 `form:"user_id" binding:"required"`
	}{}

	err := c.ShouldBind(&req)
	if err != nil {
		log.Errorf("err: %+v", errors.Wrap(err, "should bind"))
		c.JSON(http.StatusBadRequest, generr.ParseParam)
		return
	}

	left, err := h.engine.Remaining(c.Request.Context(), req.UserID, h.rules)
	if err != nil {
		h.fail(c, errors.Wrap(err, "remaining quota"))
		return
	}
	c.JSON(http.StatusOK, generr.Success(map[string]int64{"remaining_today": left}))
}

func (h *Handler) Tier(c *gin.Context) {
	req := struct {
		UserID int64 `form:"user_id" binding:"required"`
	}{}

	err := c.ShouldBind(&req)
	if err != nil {
		log.Errorf("err: %+v", errors.Wrap(err, "should bind"))
		c.JSON(http.StatusBadRequest, generr.ParseParam)
		return
	}

	tier, err := h.tiers.ResolveTier(c.Request.Context(), req.UserID)
	if err != nil {
		log.Errorf("err: %+v", errors.Wrap(err, "resolve tier"))
		c.JSON(http.StatusInternalServerError, generr.ReadDB)
		return
	}
	c.JSON(http.StatusOK, generr.Success(tier))
}

// History pages the accrual log of a user, newest first.
func (h *Handler) History(c *gin.Context) {
	req := struct {
		UserID   int64 `form:"user_id" binding:"required"`
		LastID   int64 `form:"last_id"`   // 上一页最后一条ID
		PageSize int   `form:"page_size"` // 每页条数
	}{}

	err := c.ShouldBind(&req)
	if err != nil {
		log.Errorf("err: %+v", errors.Wrap(err, "should bind"))
		c.JSON(http.StatusBadRequest, generr.ParseParam)
		return
	}

	logs, err := dao.History.Accruals(c.Request.Context(), h.gdb, req.UserID, req.LastID, PageSize(req.PageSize))
	if err != nil {
		log.Errorf("err: %+v", errors.Wrap(err, "list accrual logs"))
		c.JSON(http.StatusInternalServerError, generr.ReadDB)
		return
	}
	c.JSON(http.StatusOK, generr.Success(logs))
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch errors.Cause(err) {
	case ErrUnknownAction:
		c.JSON(http.StatusBadRequest, generr.UnknownAction)
	case ErrQuotaNotConfigured:
		log.Errorf("err: %+v", err)
		c.JSON(http.StatusInternalServerError, generr.QuotaNotConfigured)
	case ErrUserNotFound:
		c.JSON(http.StatusNotFound, generr.UserNotFound)
	default:
		log.Errorf("err: %+v", err)
		c.JSON(http.StatusInternalServerError, generr.UpdateDB)
	}
}

// PageSize clamps a requested page size into [1, 100].
func PageSize(n int) int {
	if n <= 0 {
		return defaultPageSize
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}
