package logger

import (
	"io"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
)

const (
	LevelError = iota
	LevelWarning
	LevelInfo
	LevelDebug
)

var (
	Error *log.Logger
	Warn  *log.Logger
	Info  *log.Logger
	Debug *log.Logger

	errorColor = color.New(color.FgHiRed, color.Bold)
	warnColor  = color.New(color.FgHiYellow)
	infoColor  = color.New(color.FgHiCyan)
	debugColor = color.New(color.FgHiBlack)

	currentLevel = LevelInfo
)

func init() {
	Setup(LevelInfo)
}

func Setup(level int) {
	SetupWithOutput(level, os.Stdout, os.Stderr)
}

// SetupWithOutput routes info/debug output to out and warnings/errors to errOut.
func SetupWithOutput(level int, out, errOut io.Writer) {
	currentLevel = level

	Error = log.New(errOut, errorColor.Sprint("ERROR ")+" ", log.Ldate|log.Ltime|log.Lshortfile)

	if level >= LevelWarning {
		Warn = log.New(errOut, warnColor.Sprint("WARN  ")+" ", log.Ldate|log.Ltime)
	} else {
		Warn = log.New(io.Discard, "", 0)
	}

	if level >= LevelInfo {
		Info = log.New(out, infoColor.Sprint("INFO  ")+" ", log.Ldate|log.Ltime)
	} else {
		Info = log.New(io.Discard, "", 0)
	}

	if level >= LevelDebug {
		Debug = log.New(out, debugColor.Sprint("DEBUG ")+" ", log.Ldate|log.Ltime|log.Lshortfile)
	} else {
		Debug = log.New(io.Discard, "", 0)
	}
}

// ParseLevel maps a level name to its constant. Unknown names fall back to LevelInfo.
func ParseLevel(name string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "error":
		return LevelError, true
	case "warn", "warning":
		return LevelWarning, true
	case "info", "":
		return LevelInfo, true
	case "debug":
		return LevelDebug, true
	default:
		return LevelInfo, false
	}
}

func GetCurrentLevel() int {
	return currentLevel
}

func SetLevel(newLevel int) {
	Setup(newLevel)
}
