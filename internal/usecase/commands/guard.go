package commands

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/charmbracelet/log"

	"rubot/internal/domain"
)

// PanicError is what a handler panic turns into at the guard boundary.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Guard wraps h so that neither a returned error nor a panic leaves it.
// Failures are logged with the rule name and a trace, then returned to the
// caller as a value.
func Guard(name string, h Handler, logger *log.Logger) Handler {
	return func(ctx context.Context, msg domain.Message, args string) (err error) {
		defer func() {
			if v := recover(); v != nil {
				err = &PanicError{Value: v, Stack: debug.Stack()}
			}
			if err == nil || logger == nil {
				return
			}
			keyvals := []any{"rule", name, "user", msg.Username, "err", err}
			if pe, ok := err.(*PanicError); ok {
				keyvals = append(keyvals, "trace", string(pe.Stack))
			} else {
				keyvals = append(keyvals, "trace", fmt.Sprintf("%+v", err))
			}
			logger.Error("command failed", keyvals...)
		}()
		return h(ctx, msg, args)
	}
}
