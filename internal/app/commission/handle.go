package commission

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"server-rewards-app/internal/app/points"
	"server-rewards-app/internal/dao"
	"server-rewards-app/internal/model"
	"server-rewards-app/internal/pkg/generr"
)

// Handler records completed purchases and pays their commission.
type Handler struct {
	engine *Engine
	db     *sql.DB
	gdb    *gorm.DB
	cfg    Config
}

func NewHandler(engine *Engine, db *sql.DB, gdb *gorm.DB, cfg Config) *Handler {
	return &Handler{engine: engine, db: db, gdb: gdb, cfg: cfg}
}

// Purchase stores the purchase row, then distributes commission in a
// transaction of its own.
func (h *Handler) Purchase(c *gin.Context) {
	req := struct {
		UserID      int64  `json:"user_id" form:"user_id" binding:"required"`           // 购买用户ID
		ProductName string `json:"product_name" form:"product_name" binding:"required"` // 产品名称
		GrossAmount string `json:"gross_amount" form:"gross_amount" binding:"required"` // 支付金额
		PurchasedAt int64  `json:"purchased_at" form:"purchased_at"`                    // 购买时间(unix秒), 缺省为当前时间
	}{}

	err := c.ShouldBind(&req)
	if err != nil {
		log.Errorf("err: %+v", errors.Wrap(err, "should bind"))
		c.JSON(http.StatusBadRequest, generr.ParseParam)
		return
	}

	gross, err := decimal.NewFromString(req.GrossAmount)
	if err != nil || gross.IsNegative() {
		log.Errorf("err: %+v", errors.Errorf("gross_amount: %q", req.GrossAmount))
		c.JSON(http.StatusBadRequest, generr.InvalidAmount)
		return
	}
	purchasedAt := time.Now()
	if req.PurchasedAt > 0 {
		purchasedAt = time.Unix(req.PurchasedAt, 0)
	}

	ctx := c.Request.Context()
	purchaseID, err := dao.Purchase.Create(ctx, h.db, model.Purchase{
		UserID:      req.UserID,
		ProductName: req.ProductName,
		GrossAmount: gross,
		PurchasedAt: purchasedAt,
	})
	if err != nil {
		log.Errorf("err: %+v", errors.Wrap(err, "add purchase record"))
		c.JSON(http.StatusInternalServerError, generr.UpdateDB)
		return
	}

	// The purchase stays recorded when distribution fails.
	awards, err := h.engine.Distribute(ctx, nil, req.UserID, gross, h.cfg)
	if err != nil {
		log.Errorf("err: %+v", errors.Wrapf(err, "distribute commission of purchase %d", purchaseID))
		if errors.Cause(err) == dao.ErrInvalidSettings {
			c.JSON(http.StatusInternalServerError, generr.InvalidReferrerCfg)
			return
		}
		c.JSON(http.StatusInternalServerError, generr.UpdateDB)
		return
	}

	c.JSON(http.StatusOK, generr.Success(awards))
}

// History pages the commission credited to a referrer, newest first.
func (h *Handler) History(c *gin.Context) {
	req := struct {
		UserID   int64 `form:"user_id" binding:"required"`
		LastID   int64 `form:"last_id"`
		PageSize int   `form:"page_size"`
	}{}

	err := c.ShouldBind(&req)
	if err != nil {
		log.Errorf("err: %+v", errors.Wrap(err, "should bind"))
		c.JSON(http.StatusBadRequest, generr.ParseParam)
		return
	}

	logs, err := dao.History.Commissions(c.Request.Context(), h.gdb, req.UserID, req.LastID, points.PageSize(req.PageSize))
	if err != nil {
		log.Errorf("err: %+v", errors.Wrap(err, "list commission logs"))
		c.JSON(http.StatusInternalServerError, generr.ReadDB)
		return
	}
	c.JSON(http.StatusOK, generr.Success(logs))
}
