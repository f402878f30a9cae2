package gale

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
)

// Logger receives progress and terminal reporting during exploration.
// Regions delimit the subprogram (by symbol) currently executing so
// interleaved path output stays readable.
type Logger interface {
	// CurrentRegion returns the region name of the last delimiter.
	CurrentRegion() string

	// UpdateDelimiter marks entry into a new region at pc.
	UpdateDelimiter(pc uint64, region string)

	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	// Assumef reports a constraint assumed onto the current path.
	Assumef(format string, args ...interface{})

	// PathExplored reports one terminal path result.
	PathExplored(result *PathResult)
}

// NopLogger discards all output.
type NopLogger struct{}

func (NopLogger) CurrentRegion() string                      { return "" }
func (NopLogger) UpdateDelimiter(pc uint64, region string)   {}
func (NopLogger) Warnf(format string, args ...interface{})   {}
func (NopLogger) Errorf(format string, args ...interface{})  {}
func (NopLogger) Assumef(format string, args ...interface{}) {}
func (NopLogger) PathExplored(result *PathResult)            {}

// LogrusLogger writes exploration output through a logrus logger.
type LogrusLogger struct {
	log    logrus.FieldLogger
	region string
}

// NewLogrusLogger returns a logger writing to log.
// Passing nil uses the logrus standard logger.
func NewLogrusLogger(log logrus.FieldLogger) *LogrusLogger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogrusLogger{log: log}
}

// CurrentRegion returns the region name of the last delimiter.
func (l *LogrusLogger) CurrentRegion() string { return l.region }

// UpdateDelimiter marks entry into a new region at pc.
func (l *LogrusLogger) UpdateDelimiter(pc uint64, region string) {
	l.region = region
	l.log.WithFields(logrus.Fields{"pc": pc, "region": region}).Debug("entering region")
}

func (l *LogrusLogger) Warnf(format string, args ...interface{}) {
	l.log.WithField("region", l.region).Warnf(format, args...)
}

func (l *LogrusLogger) Errorf(format string, args ...interface{}) {
	l.log.WithField("region", l.region).Errorf(format, args...)
}

// Assumef reports a constraint assumed onto the current path.
func (l *LogrusLogger) Assumef(format string, args ...interface{}) {
	l.log.WithField("region", l.region).Infof(format, args...)
}

// PathExplored reports one terminal path result: status, final program
// counter, cycle count, the path's constraints, and any user payload.
func (l *LogrusLogger) PathExplored(result *PathResult) {
	entry := l.log.WithFields(logrus.Fields{
		"status":      result.Status.String(),
		"pc":          result.PC,
		"cycles":      result.Cycles,
		"constraints": len(result.Constraints),
	})
	if result.Reason != "" {
		entry = entry.WithField("reason", result.Reason)
	}

	switch result.Status {
	case PathFailure:
		entry.Error("path explored")
	case PathUnsat, PathSuppressed:
		entry.Debug("path explored")
	default:
		entry.Info("path explored")
	}

	for _, constraint := range result.Constraints {
		l.log.Debugf("  constraint: %s", constraint)
	}
	if result.State != nil && result.State.User != nil {
		l.log.Debug(spew.Sdump(result.State.User))
	}
}
