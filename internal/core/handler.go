package core

import (
	"fmt"
	"reflect"
	"sync"
)

// Handler consumes classified inbound messages.
type Handler interface {
	HandleMessage(msg *Message)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(msg *Message)

// HandleMessage calls f(msg).
func (f HandlerFunc) HandleMessage(msg *Message) {
	f(msg)
}

// asHandler accepts a Handler, a HandlerFunc or a func(*Message).
func asHandler(h any) (Handler, error) {
	switch v := h.(type) {
	case HandlerFunc:
		if v != nil {
			return v, nil
		}
	case func(*Message):
		if v != nil {
			return HandlerFunc(v), nil
		}
	case Handler:
		if v != nil && !isNilPointer(v) {
			return v, nil
		}
	}
	return nil, coreError(ErrCodeInvalidHandler, fmt.Sprintf("not a valid message handler: %T", h), ErrInvalidHandler)
}

// isNilPointer catches a typed nil such as (*T)(nil) stored in an interface.
func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

type registry struct {
	mu       sync.RWMutex
	handlers []Handler
}

func (r *registry) add(h Handler) {
	r.mu.Lock()
	r.handlers = append(r.handlers, h)
	r.mu.Unlock()
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// dispatch runs every handler in registration order on a snapshot, so
// handlers may register more handlers without deadlocking.
func (r *registry) dispatch(msg *Message) {
	r.mu.RLock()
	handlers := append([]Handler(nil), r.handlers...)
	r.mu.RUnlock()

	for _, h := range handlers {
		h.HandleMessage(msg)
	}
}
