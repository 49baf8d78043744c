package util

import (
	"errors"
	"io"
	"sync"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

type namedCloser struct {
	name string
	c    io.Closer
}

var (
	closeMu sync.Mutex
	closers []namedCloser
)

// RegisterCloser schedules c to be closed by CloseAll. name shows up in logs
// and errors, e.g. "trace" or "monitor".
func RegisterCloser(name string, c io.Closer) {
	if c == nil {
		return
	}
	closeMu.Lock()
	defer closeMu.Unlock()
	closers = append(closers, namedCloser{name: name, c: c})
	log.WithFields(logger.Fields{
		"at":    "util.RegisterCloser",
		"name":  name,
		"count": len(closers),
	}).Debug("closer_registered")
}

// CloseAll closes everything registered, newest first, and forgets it. Every
// closer runs even when an earlier one fails; the failures are joined.
func CloseAll() error {
	closeMu.Lock()
	pending := closers
	closers = nil
	closeMu.Unlock()

	var errs []error
	for i := len(pending) - 1; i >= 0; i-- {
		nc := pending[i]
		if err := nc.c.Close(); err != nil {
			log.WithField("at", "util.CloseAll").WithError(err).Warn("close_failed")
			errs = append(errs, oops.Wrapf(err, "close %s", nc.name))
		}
	}
	return errors.Join(errs...)
}
