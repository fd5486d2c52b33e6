// Package middleware wraps a RunStore with behavior applied to every
// snapshot on its way to storage.
package middleware

import "github.com/aretw0/conductor/pkg/ports"

// Middleware wraps a RunStore.
type Middleware func(ports.RunStore) ports.RunStore

// Wrap applies mws to store. The first middleware is the outermost, so it
// sees a snapshot before the others do.
func Wrap(store ports.RunStore, mws ...Middleware) ports.RunStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
