package nimolog

import (
	"errors"
	"fmt"
)

// Level is a logging severity, ordered Debug < Info < Warn < Error < Fatal.
type Level int

const (
	_ Level = iota
	Debug
	Info
	Warn
	Error
	Fatal
)

// ParseLevel parses one of "debug", "info", "warn", "error", "fatal".
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug":
		return Debug, nil
	case "info":
		return Info, nil
	case "warn":
		return Warn, nil
	case "error":
		return Error, nil
	case "fatal":
		return Fatal, nil
	}
	return -1, errors.New("invalid log level: " + s)
}

func (l *Level) Set(s string) (err error) {
	*l, err = ParseLevel(s)
	return
}

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("Level(%d)", l)
}
