// Package nimolog provides the logging sidechannel shared by every nImO
// process: multiple simultaneously-installed loggers, each with its own
// level, in the shape of the teacher's minilog package. Every context
// (§4.E), the registry core, the channel layer, and the discovery layer
// log through here instead of the bare standard library "log" package.
package nimolog

import (
	"fmt"
	golog "log"
	"io"
	"os"
	"sync"
)

var (
	loggers = make(map[string]*logger)
	mu      sync.RWMutex
)

type logger struct {
	l     *golog.Logger
	level Level
}

// AddLogger installs a named logger writing to output at the given level.
// Re-adding a name replaces the previous logger.
func AddLogger(name string, output io.Writer, level Level) {
	mu.Lock()
	defer mu.Unlock()

	loggers[name] = &logger{
		l:     golog.New(output, "", golog.LstdFlags|golog.Lmicroseconds),
		level: level,
	}
}

// DelLogger removes a named logger.
func DelLogger(name string) {
	mu.Lock()
	defer mu.Unlock()
	delete(loggers, name)
}

// SetLevel changes the level of a named logger.
func SetLevel(name string, level Level) error {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[name]; ok {
		l.level = level
		return nil
	}
	return fmt.Errorf("no such logger: %v", name)
}

// WillLog reports whether anything is currently listening at level.
func WillLog(level Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	for _, l := range loggers {
		if l.level <= level {
			return true
		}
	}
	return false
}

func output(level Level, tag, format string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()

	if len(loggers) == 0 {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if tag != "" {
		msg = "[" + tag + "] " + msg
	}
	msg = "[" + level.String() + "] " + msg

	for _, l := range loggers {
		if l.level <= level {
			l.l.Println(msg)
		}
	}
}

func Debugf(format string, args ...interface{}) { output(Debug, "", format, args...) }
func Infof(format string, args ...interface{})  { output(Info, "", format, args...) }
func Warnf(format string, args ...interface{})  { output(Warn, "", format, args...) }
func Errorf(format string, args ...interface{}) { output(Error, "", format, args...) }

// Fatalf logs at Fatal and terminates the process. Use only from main().
func Fatalf(format string, args ...interface{}) {
	output(Fatal, "", format, args...)
	os.Exit(1)
}

// Tagged returns a logger that prefixes every message with tag — used by
// contexts so the node name shows up on every line without threading a
// string through every log call.
func Tagged(tag string) *TaggedLogger {
	return &TaggedLogger{tag: tag}
}

// TaggedLogger is a thin wrapper that prefixes messages with a fixed tag
// (typically a node or context name).
type TaggedLogger struct {
	tag string
}

func (t *TaggedLogger) Debug(format string, args ...interface{}) { output(Debug, t.tag, format, args...) }
func (t *TaggedLogger) Info(format string, args ...interface{})  { output(Info, t.tag, format, args...) }
func (t *TaggedLogger) Warn(format string, args ...interface{})  { output(Warn, t.tag, format, args...) }
func (t *TaggedLogger) Error(format string, args ...interface{}) { output(Error, t.tag, format, args...) }
