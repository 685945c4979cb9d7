package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron"
	log "github.com/sirupsen/logrus"

	"server-rewards-app/internal/app/quota"
)

const reconcileTimeout = 10 * time.Minute

// ReconcileTicker rewrites quota cache entries from the accrual log on schedule.
func ReconcileTicker(schedule string, ledger *quota.Ledger) (*cron.Cron, error) {
	c := cron.New()
	err := c.AddFunc(schedule, func() { reconcile(ledger) })
	if err != nil {
		return nil, errors.Wrapf(err, "add reconcile job %q", schedule)
	}
	c.Start()
	return c, nil
}

func reconcile(ledger *quota.Ledger) {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()

	t := time.Now()
	n, err := ledger.Reconcile(ctx)
	if err != nil {
		log.Errorf("err: %+v", errors.Wrap(err, "reconcile quota cache"))
		return
	}
	log.Infof("quota cache reconciled for %d users, cost time: %v", n, time.Since(t))
}
