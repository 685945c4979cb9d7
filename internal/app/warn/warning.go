package warn

import log "github.com/sirupsen/logrus"

// Skip records a failed best-effort step. The caller carries on; err is returned
// only so call sites can branch on it.
func Skip(desc string, err error) error {
	if err != nil {
		log.Warnf("%s failed, skipped: %v", desc, err)
	}
	return err
}
