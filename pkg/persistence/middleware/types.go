// Package middleware provides composable decorators for ports.Storage.
// Each middleware wraps a backend to add one behavior, like encryption at
// rest, redaction of sensitive values or write tracing, without the engine
// knowing which store it talks to.
package middleware

import "github.com/aretw0/arbor/pkg/ports"

// Middleware wraps a Storage to add behavior.
type Middleware func(ports.Storage) ports.Storage

// Chain composes middlewares into one. The first middleware listed becomes
// the outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(store ports.Storage) ports.Storage {
		for i := len(mws) - 1; i >= 0; i-- {
			store = mws[i](store)
		}
		return store
	}
}
