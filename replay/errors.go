package replay

import (
	"errors"
	"fmt"
)

// ErrParserClosed Close 之后继续 Feed。
var ErrParserClosed = errors.New("parser closed")

// FormatError 日志行不符合语法；Line 从 1 开始计数。
type FormatError struct {
	Line   int
	Text   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// IsFormat reports whether err wraps a FormatError.
func IsFormat(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
