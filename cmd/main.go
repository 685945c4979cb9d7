package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"server-rewards-app/config"
	"server-rewards-app/internal/app/commission"
	"server-rewards-app/internal/app/dgraph"
	"server-rewards-app/internal/app/entitlement"
	"server-rewards-app/internal/app/points"
	"server-rewards-app/internal/app/quota"
	"server-rewards-app/internal/app/referral"
	"server-rewards-app/internal/app/service"
	"server-rewards-app/internal/db"
	"server-rewards-app/internal/pkg/middleware"
)

func initLog() {
	if config.Server.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(config.Server.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if config.Server.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
}

func main() {
	flag.Parse()
	config.Init()
	initLog()

	sqlDB, err := db.OpenMysql(config.MySql)
	if err != nil {
		log.Fatalf("err: %+v", err)
	}
	defer sqlDB.Close()

	gdb, err := db.OpenGorm(sqlDB)
	if err != nil {
		log.Fatalf("err: %+v", err)
	}
	if config.MySql.AutoMigrate {
		if err = db.Migrate(gdb); err != nil {
			log.Fatalf("err: %+v", err)
		}
	}

	// without redis every quota read is rebuilt from the accrual log
	var cache quota.Cache
	if config.Redis.Enabled {
		rdb, err := db.OpenRedis(config.Redis)
		if err != nil {
			log.Warnf("quota cache disabled: %v", err)
		} else {
			defer rdb.Close()
			cache = quota.NewRedisCache(rdb)
		}
	}

	loc, _ := config.Rewards.Location()
	ledger := quota.NewLedger(sqlDB, cache, loc)
	tiers := entitlement.NewResolver(sqlDB, config.Rewards.ProductValidityDays)
	graph := referral.NewResolver(sqlDB)

	var mirror referral.TreeSource
	if config.Dgraph.Enabled {
		m, err := dgraph.Open(config.Dgraph.RPCAddr)
		if err != nil {
			log.Warnf("dgraph mirror disabled: %v", err)
		} else {
			defer m.Close()
			mirror = m
		}
	}

	handlers := service.Handlers{
		Points: points.NewHandler(points.NewEngine(sqlDB, ledger, tiers), tiers, gdb,
			points.RulesFromConfig(config.Rewards)),
		Commission: commission.NewHandler(commission.NewEngine(sqlDB, graph), sqlDB, gdb,
			commission.ConfigFrom(config.Rewards.Commission)),
		Referral: referral.NewHandler(graph, mirror),
	}
	if config.Server.SignCheck {
		handlers.Sign = middleware.ValidateSign(sqlDB, nil)
	}
	httpSrv := service.NewHttp(handlers)
	go service.RunHttp(httpSrv)

	if cache != nil && config.Rewards.ReconcileSchedule != "" {
		c, err := service.ReconcileTicker(config.Rewards.ReconcileSchedule, ledger)
		if err != nil {
			log.Fatalf("err: %+v", err)
		}
		defer c.Stop()
	}

	// Wait for interrupt signal to gracefully shutdown the server with
	// a timeout of 5 seconds.
	quit := make(chan os.Signal, 1)
	// kill (no param) default send syscall.SIGTERM
	// kill -2 is syscall.SIGINT
	// kill -9 is syscall.SIGKILL but can't be catch, so don't need add it
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Errorf("Server Shutdown: %v", err)
	}
	log.Info("Server exiting")
}
