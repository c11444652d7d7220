package elog

import (
	"bytes"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// CLI is a View for command-line programs. It is also a logrus.Formatter,
// so install it with logrus.SetFormatter before use.
type CLI struct {
	IsDebug    bool
	IsVerbose  bool
	DisableTTY bool
}

func (log *CLI) tty() bool {
	if log.DisableTTY {
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (log *CLI) paint(attr color.Attribute, s string) string {
	c := color.New(attr)
	if log.tty() {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint(s)
}

// Format implements logrus.Formatter.
func (log *CLI) Format(entry *logrus.Entry) ([]byte, error) {

	buf := new(bytes.Buffer)

	switch entry.Level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		buf.WriteString(log.paint(color.FgRed, "error: "))
	case logrus.WarnLevel:
		buf.WriteString(log.paint(color.FgYellow, "warning: "))
	}

	msg := entry.Message
	if entry.Level >= logrus.DebugLevel {
		msg = log.paint(color.Faint, msg)
	}

	buf.WriteString(msg)
	if !strings.HasSuffix(entry.Message, "\n") {
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil

}

// Debugf logs only when IsDebug is set.
func (log *CLI) Debugf(format string, args ...interface{}) {
	if !log.IsDebug {
		return
	}
	logrus.Debugf(format, args...)
}

// Errorf ..
func (log *CLI) Errorf(format string, args ...interface{}) {
	logrus.Errorf(format, args...)
}

// Infof logs only when IsVerbose is set.
func (log *CLI) Infof(format string, args ...interface{}) {
	if !log.IsVerbose {
		return
	}
	logrus.Infof(format, args...)
}

// Printf ..
func (log *CLI) Printf(format string, args ...interface{}) {
	logrus.Infof(format, args...)
}

// Warnf ..
func (log *CLI) Warnf(format string, args ...interface{}) {
	logrus.Warnf(format, args...)
}
