package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var (
	mu       sync.Mutex
	level    = INFO
	out      = os.Stderr
	levelTag = map[Level]string{
		DEBUG: "DEBUG",
		INFO:  "INFO",
		WARN:  "WARN",
		ERROR: "ERROR",
	}
)

func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// logCF writes one line: timestamp, level, component, message, JSON fields.
func logCF(l Level, component, msg string, fields map[string]interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if l < level {
		return
	}

	line := fmt.Sprintf("%s %-5s [%s] %s",
		time.Now().Format("2006-01-02 15:04:05.000"), levelTag[l], component, msg)
	if len(fields) > 0 {
		if raw, err := json.Marshal(fields); err == nil {
			line += " " + string(raw)
		}
	}
	fmt.Fprintln(out, line)
}

func DebugCF(component, msg string, fields map[string]interface{}) {
	logCF(DEBUG, component, msg, fields)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	logCF(INFO, component, msg, fields)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	logCF(WARN, component, msg, fields)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	logCF(ERROR, component, msg, fields)
}
