package resthttpd

import (
	"github.com/restcore/resthttpd/registry"
)

// Register is VmRESTRegisterHandler: it adds uri with its six-method
// callback table and an opaque userData value handed back on every
// invocation of those callbacks. Legal any time between Init and
// Shutdown — before or after Start, per §4.I.
func (e *Engine) Register(uri string, handlers MethodTable, userData interface{}) error {
	e.mu.Lock()
	state := e.state
	reg := e.registry
	e.mu.Unlock()

	if state == StateUninitialized || reg == nil {
		return newError("Engine.Register", KindInvalidState, nil)
	}

	var table [registry.NumMethods]interface{}
	for i, h := range handlers {
		if h != nil {
			table[i] = h
		}
	}
	if err := reg.Register(uri, table, userData); err != nil {
		return newError("Engine.Register", KindAlreadyRegistered, err)
	}
	return nil
}

// Unregister is VmRESTUnRegisterHandler: idempotent on an absent uri.
func (e *Engine) Unregister(uri string) error {
	e.mu.Lock()
	state := e.state
	reg := e.registry
	e.mu.Unlock()

	if state == StateUninitialized || reg == nil {
		return newError("Engine.Unregister", KindInvalidState, nil)
	}
	return reg.Unregister(uri)
}
