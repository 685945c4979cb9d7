package util

import (
	"time"

	log "github.com/sirupsen/logrus"
)

var ShLoc *time.Location

func init() {
	var err error
	ShLoc, err = time.LoadLocation("Asia/Shanghai")
	if err != nil {
		log.Warnf("load location failed")
		ShLoc = time.Local
	}
}

// StartOfDay returns the midnight that opens t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}
