package simulation

import log "gopkg.in/inconshreveable/log15.v2"

// logger is the package-level structured logger, wired up by the process
// bootstrap via InitializeLogger. Until that call it defaults to log15's
// root logger so the package is still usable (and quiet) in tests.
var logger = log.New("module", "simulation")

// InitializeLogger binds this package's logger as a child of parentLogger,
// the same one-call wiring convention the teacher's server package uses.
func InitializeLogger(parentLogger log.Logger) {
	logger = parentLogger.New("module", "simulation")
}
