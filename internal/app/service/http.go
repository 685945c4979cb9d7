package service

import (
	"fmt"
	"net/http"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"server-rewards-app/config"
	"server-rewards-app/internal/app/commission"
	"server-rewards-app/internal/app/metrics"
	"server-rewards-app/internal/app/points"
	"server-rewards-app/internal/app/referral"
)

var srv *http.Server

// Handlers groups what the router serves. Sign guards every business route
// when set.
type Handlers struct {
	Points     *points.Handler
	Commission *commission.Handler
	Referral   *referral.Handler
	Sign       gin.HandlerFunc
}

func Router(h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), metrics.Gin)
	pprof.Register(r)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	var guard []gin.HandlerFunc
	if h.Sign != nil {
		guard = append(guard, h.Sign)
	}

	rewardsGroup := r.Group("/rewards", guard...)
	rewardsGroup.POST("/points", h.Points.Credit)
	rewardsGroup.GET("/points/remaining", h.Points.Remaining)
	rewardsGroup.GET("/points/history", h.Points.History)
	rewardsGroup.GET("/tier", h.Points.Tier)
	rewardsGroup.POST("/commission", h.Commission.Purchase)
	rewardsGroup.GET("/commission/history", h.Commission.History)

	referralGroup := r.Group("/referral", guard...)
	referralGroup.GET("/upline", h.Referral.Upline)
	referralGroup.GET("/tree", h.Referral.Tree)

	return r
}

// NewHttp builds the server on the configured address. Call it before
// starting RunHttp so that shutdown always has a server to stop.
func NewHttp(h Handlers) *http.Server {
	srv = &http.Server{
		Addr:    fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port),
		Handler: Router(h),
	}
	return srv
}

func RunHttp(s *http.Server) {
	log.Infof("Start to listen %s", s.Addr)
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("listen: %s\n", err)
	}
}

func GetHttp() *http.Server {
	return srv
}
