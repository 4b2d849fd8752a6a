package handler

import (
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ParseOrGenerateSessionID keeps a client-supplied uuid for log correlation
// and otherwise generates a time-ordered one.
func ParseOrGenerateSessionID(param string, ok bool) string {
	if ok {
		id, err := uuid.Parse(param)
		if err == nil {
			return id.String()
		}
		log.WithFields(log.Fields{
			"prefix":     "ParseOrGenerateSessionID",
			"error":      err,
			"invalid_id": param,
		}).Warn("generating a new session id")
	}

	id, err := uuid.NewV7()
	if err != nil {
		log.WithField("prefix", "ParseOrGenerateSessionID").Error(err)
		return uuid.NewString()
	}
	return id.String()
}
