package pipeline

import (
	"fmt"
	"strings"
)

// RunLog collects the operator-facing transcript of one run. Stages
// append to it as they work; callers surface it with the results on
// success and alongside the error on failure. Methods tolerate a nil
// receiver so a transcript is always optional.
type RunLog struct {
	lines []string
}

func NewRunLog() *RunLog {
	return &RunLog{lines: []string{"**処理ログ:**"}}
}

func (l *RunLog) Logf(format string, args ...any) {
	if l == nil {
		return
	}
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *RunLog) Lines() []string {
	if l == nil {
		return nil
	}
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

func (l *RunLog) Transcript() string {
	if l == nil {
		return ""
	}
	return strings.Join(l.lines, "\n")
}
