package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

var (
	debugLogger   = log.New(io.Discard, "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile)
	infoLogger    = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	warningLogger = log.New(os.Stdout, "WARNING: ", log.Ldate|log.Ltime|log.Lshortfile)
	errorLogger   = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
)

// InitLogger sets the minimum level: debug, info, warning or error.
func InitLogger(level string) {
	debugLogger.SetOutput(io.Discard)
	infoLogger.SetOutput(os.Stdout)
	warningLogger.SetOutput(os.Stdout)

	switch strings.ToLower(level) {
	case "debug":
		debugLogger.SetOutput(os.Stdout)
	case "warning", "warn":
		infoLogger.SetOutput(io.Discard)
	case "error":
		infoLogger.SetOutput(io.Discard)
		warningLogger.SetOutput(io.Discard)
	}
}

func LogDebug(message string) {
	debugLogger.Output(2, message)
}

func LogInfof(format string, args ...interface{}) {
	infoLogger.Output(2, fmt.Sprintf(format, args...))
}

func LogWarning(message string) {
	warningLogger.Output(2, message)
}

func LogWarningf(format string, args ...interface{}) {
	warningLogger.Output(2, fmt.Sprintf(format, args...))
}

func LogError(message string, err error) {
	if err != nil {
		errorLogger.Output(2, fmt.Sprintf("%s: %v", message, err))
	} else {
		errorLogger.Output(2, message)
	}
}
