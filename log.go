package bluetooth

import (
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("pkg", "bluetooth")

// SetLogger replaces the logger used for adapter, advertisement and
// characteristic events. Payload encoding never logs.
func SetLogger(l *log.Logger) {
	logger = l.WithField("pkg", "bluetooth")
}
