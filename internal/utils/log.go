// Package utils holds small shared helpers.
package utils

import (
	"log"
	"os"
	"sync"
)

const auditLogFile = "perp-paper-trader.log"

var (
	auditLogger *log.Logger
	auditOnce   sync.Once
)

// GetLogger returns the process-wide audit logger, appending to a file next
// to the binary. Used for run lifecycle records that should outlive stdout.
func GetLogger() *log.Logger {
	auditOnce.Do(func() {
		file, err := os.OpenFile(auditLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("GetLogger | open %s: %v", auditLogFile, err)
		}
		auditLogger = log.New(file, "audit: ", log.LstdFlags|log.LUTC)
	})
	return auditLogger
}
