package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var logMu sync.Mutex

// logDecision appends one line to the decision log. Prompts and scores are
// never written.
func logDecision(platform Platform, decision, source, reason string) {
	logMu.Lock()
	defer logMu.Unlock()

	logDir := configDir()
	os.MkdirAll(logDir, 0755)

	logFile := filepath.Join(logDir, "decisions.log")
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	if platform == "" {
		platform = "-"
	}
	// Truncate long reasons for logging
	if len(reason) > 200 {
		reason = reason[:200] + "..."
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	logEntry := fmt.Sprintf("[%s] %s | platform=%s | source=%s | reason=%s\n",
		timestamp, decision, platform, source, reason)
	f.WriteString(logEntry)
}
