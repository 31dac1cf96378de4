package errors

import (
	"fmt"

	"github.com/tliron/commonlog"
)

// Warning is a non-fatal condition observed during analysis. Warnings do not
// alter the analyzer's output; they exist so a caller can audit what the
// model approximated.
type Warning struct {
	Code    string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("warning[%s]: %s", w.Code, w.Message)
}

// WarningSink collects warnings and mirrors each one to a commonlog logger.
// One sink per analysis; it is not safe for concurrent use.
type WarningSink struct {
	log      commonlog.Logger
	warnings []Warning
}

// NewWarningSink creates a sink that logs through the given scope.
func NewWarningSink(scope string) *WarningSink {
	return &WarningSink{log: commonlog.GetLogger(scope)}
}

// Warnf records a warning and logs it.
func (s *WarningSink) Warnf(code, format string, args ...interface{}) {
	w := Warning{Code: code, Message: fmt.Sprintf(format, args...)}
	s.warnings = append(s.warnings, w)
	s.log.Warningf("[%s] %s", w.Code, w.Message)
}

// Warnings returns every warning recorded so far, in order.
func (s *WarningSink) Warnings() []Warning {
	return s.warnings
}
