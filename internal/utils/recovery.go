package utils

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// RunWithRecovery runs a function in a goroutine with panic recovery.
// It logs any recovered panics and continues execution.
func RunWithRecovery(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("RECOVERED FROM PANIC: %v", r)
			}
		}()
		fn()
	}()
}

// PanicError is returned by CallWithRecovery when fn panicked.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// CallWithRecovery calls fn synchronously and turns a panic into a *PanicError.
func CallWithRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn()
}
