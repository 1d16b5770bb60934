package model

import (
	"sort"
	"sync"

	apperrors "github.com/ksteimel/fast-coref/internal/pkg/errors"
)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
	backends  = make(map[string]BackendFactory)
)

// Register makes a model factory available under name. It panics when the
// name is taken, since registration happens from init functions.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[name]; dup {
		panic("model: Register called twice for " + name)
	}
	factories[name] = f
}

// RegisterBackend makes a backend factory available under name
func RegisterBackend(name string, f BackendFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := backends[name]; dup {
		panic("model: RegisterBackend called twice for " + name)
	}
	backends[name] = f
}

// Lookup returns the model factory registered under name
func Lookup(name string) (Factory, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[name]
	if !ok {
		return nil, apperrors.UnknownCollaborator("model", name)
	}
	return f, nil
}

// LookupBackend returns the backend factory registered under name
func LookupBackend(name string) (BackendFactory, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := backends[name]
	if !ok {
		return nil, apperrors.UnknownCollaborator("backend", name)
	}
	return f, nil
}

// Models lists registered model names
func Models() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CountParameters returns the number of scalar weights in params
func CountParameters(params []Parameter) int {
	total := 0
	for _, p := range params {
		total += p.NumElements()
	}
	return total
}
