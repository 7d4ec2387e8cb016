package logging

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// CronLogger adapts a logrus entry to the logger interface expected by
// github.com/robfig/cron/v3. Scheduler chatter (wake ups, entry runs) is logged
// at debug level. A run skipped because the previous one is still going is a
// warning; errors and recovered panics are errors.
type CronLogger struct {
	entry *logrus.Entry
}

// NewCronLogger wraps the provided entry, falling back to the base logger.
func NewCronLogger(entry *logrus.Entry) CronLogger {
	return CronLogger{entry: Component(entry, "cron")}
}

// cronSkipMessage is what cron.SkipIfStillRunning passes to Info.
const cronSkipMessage = "skip"

// Info logs routine scheduler activity.
func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	entry := l.entry.WithFields(keyValueFields(keysAndValues))
	if msg == cronSkipMessage {
		entry.WithField("event", "task_skipped").Warn("previous run still in progress, skipping trigger")
		return
	}

	entry.Debug(msg)
}

// Error logs scheduler failures such as recovered job panics.
func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(keyValueFields(keysAndValues)).WithError(err).Error(msg)
}

func keyValueFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	if len(keysAndValues)%2 == 1 {
		fields["extra"] = keysAndValues[len(keysAndValues)-1]
	}

	return fields
}
