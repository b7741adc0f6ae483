package script

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// ErrTimeout is matched by errors of evaluations that ran out of time
var ErrTimeout = errors.New("script execution timeout")

// ErrorType categorizes script failures
type ErrorType string

const (
	ErrorTypeSyntax  ErrorType = "syntax_error"
	ErrorTypeRuntime ErrorType = "runtime_error"
	ErrorTypeTimeout ErrorType = "timeout_error"
)

// ScriptError is a failure reported by a script
type ScriptError struct {
	Type    ErrorType
	Message string
	// Stack is the script stack trace if the runtime provides one
	Stack string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ScriptError) Is(target error) bool {
	return target == ErrTimeout && e.Type == ErrorTypeTimeout
}

func newTimeoutError(timeout time.Duration) *ScriptError {
	return &ScriptError{Type: ErrorTypeTimeout, Message: fmt.Sprintf("execution exceeded %s", timeout)}
}

// parseException converts goja errors into script errors
func parseException(err error) error {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		msg := exc.Error()
		if exc.Value() != nil {
			msg = exc.Value().String()
		}
		return &ScriptError{Type: ErrorTypeRuntime, Message: msg, Stack: exc.String()}
	}
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return &ScriptError{Type: ErrorTypeSyntax, Message: syntax.Error()}
	}
	return err
}
