package referral

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"server-rewards-app/config"
	"server-rewards-app/internal/pkg/generr"
)

// TreeSource renders a downline tree.
type TreeSource interface {
	Downline(ctx context.Context, userID int64, depth int) (Node, error)
}

type Handler struct {
	resolver *Resolver
	mirror   TreeSource
}

// NewHandler serves trees from mirror when set, falling back to the resolver.
func NewHandler(resolver *Resolver, mirror TreeSource) *Handler {
	return &Handler{resolver: resolver, mirror: mirror}
}

func (h *Handler) Upline(c *gin.Context) {
	req := struct {
		UserID int64 `form:"user_id" binding:"required"`
	}{}

	err := c.ShouldBind(&req)
	if err != nil {
		log.Errorf("err: %+v", errors.Wrap(err, "should bind"))
		c.JSON(http.StatusBadRequest, generr.ParseParam)
		return
	}

	chain, err := h.resolver.Upline(c.Request.Context(), req.UserID, config.MaxCommissionLevels)
	if err != nil {
		log.Errorf("err: %+v", errors.Wrap(err, "get upline"))
		c.JSON(http.StatusInternalServerError, generr.ReadDB)
		return
	}
	c.JSON(http.StatusOK, generr.Success(chain))
}

func (h *Handler) Tree(c *gin.Context) {
	req := struct {
		UserID int64 `form:"user_id" binding:"required"`
		Depth  int   `form:"depth"` // 展示层数, 缺省3
	}{}

	err := c.ShouldBind(&req)
	if err != nil {
		log.Errorf("err: %+v", errors.Wrap(err, "should bind"))
		c.JSON(http.StatusBadRequest, generr.ParseParam)
		return
	}
	if req.Depth <= 0 {
		req.Depth = 3
	}

	ctx := c.Request.Context()
	if h.mirror != nil {
		node, err := h.mirror.Downline(ctx, req.UserID, req.Depth)
		if err == nil {
			c.JSON(http.StatusOK, generr.Success(node))
			return
		}
		log.Warnf("downline of %d from mirror failed, use store: %v", req.UserID, err)
	}

	node, err := h.resolver.Downline(ctx, req.UserID, req.Depth)
	if err != nil {
		log.Errorf("err: %+v", errors.Wrap(err, "get downline"))
		c.JSON(http.StatusInternalServerError, generr.ReadDB)
		return
	}
	c.JSON(http.StatusOK, generr.Success(node))
}
