// Package errors implements module-scoped error codes that survive the
// worker-host protocol's serialization boundary.
//
// A plain Go error loses its identity once it crosses the wire as an
// Error{message} body. Registering errors under a (module, code) pair lets
// the receiving side reconstruct the original sentinel via FromCode instead
// of falling back to string comparison.
package errors

import (
	"fmt"
	"sync"
)

// unknownModule is used when module registration was skipped.
const unknownModule = "unknown"

type codedError struct {
	module  string
	code    uint32
	message string
}

func (e *codedError) Error() string {
	return e.message
}

var (
	registryLock sync.RWMutex
	registry     = make(map[string]map[uint32]error)
)

// New creates a new error that is registered under the given module and
// code. Registering the same (module, code) pair twice is a programming
// error and panics.
func New(module string, code uint32, message string) error {
	registryLock.Lock()
	defer registryLock.Unlock()

	byCode, ok := registry[module]
	if !ok {
		byCode = make(map[uint32]error)
		registry[module] = byCode
	}
	if _, ok := byCode[code]; ok {
		panic(fmt.Sprintf("errors: module '%s' already has code %d registered", module, code))
	}

	err := &codedError{module: module, code: code, message: message}
	byCode[code] = err

	return err
}

// Code returns the module and code that the given error was registered
// under, or (unknownModule, 1) if it is a plain error.
func Code(err error) (string, uint32) {
	if err == nil {
		return "", 0
	}

	if ce, ok := err.(*codedError); ok {
		return ce.module, ce.code
	}

	return unknownModule, 1
}

// FromCode looks up a previously registered error by its module and code.
// It returns nil if no such error has been registered, in which case the
// caller should fall back to the raw message carried by the protocol body.
func FromCode(module string, code uint32) error {
	registryLock.RLock()
	defer registryLock.RUnlock()

	byCode, ok := registry[module]
	if !ok {
		return nil
	}
	return byCode[code]
}
