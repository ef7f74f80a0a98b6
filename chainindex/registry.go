package chainindex

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/log"
)

// Registry is the dynamically assembled, dependency-ordered list of
// indexer plugins (§4.4). Unlike the source system's filesystem/manifest
// plugin loader (a Node.js ecosystem artifact, §9), services here are
// registered by the embedding program — a static, compiled-in registry.
type Registry struct {
	byName  map[string]Service
	ordered []Service
	started bool
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Service)}
}

// Register adds a service. It does not validate the dependency graph;
// call Resolve once all services are registered.
func (r *Registry) Register(svc Service) error {
	if svc == nil || svc.Name() == "" {
		return fmt.Errorf("%w: service has no name", ErrServiceContract)
	}
	if _, exists := r.byName[svc.Name()]; exists {
		return fmt.Errorf("%w: duplicate service name %q", ErrServiceContract, svc.Name())
	}
	r.byName[svc.Name()] = svc
	return nil
}

// Resolve topologically sorts the registered services by declared
// dependency and fixes the order used for serial handler invocation and
// for Start (Stop uses the reverse). It fails with ErrDependencyCycle if
// the dependency graph is not a DAG, and ErrServiceContract if a service
// depends on a name that was never registered.
func (r *Registry) Resolve() error {
	indegree := make(map[string]int, len(r.byName))
	dependents := make(map[string][]string, len(r.byName))

	for name, svc := range r.byName {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for _, dep := range svc.Dependencies() {
			if _, ok := r.byName[dep]; !ok {
				return fmt.Errorf("%w: service %q depends on unregistered service %q", ErrServiceContract, name, dep)
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready) // deterministic order among independent services

	var order []string
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, child := range dependents[next] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	if len(order) != len(r.byName) {
		return fmt.Errorf("%w", ErrDependencyCycle)
	}

	ordered := make([]Service, 0, len(order))
	for _, name := range order {
		ordered = append(ordered, r.byName[name])
	}
	r.ordered = ordered
	return nil
}

// Ordered returns services in dependency order (dependencies before
// dependents). Resolve must be called first.
func (r *Registry) Ordered() []Service { return r.ordered }

// IsStarted reports whether Start has completed without a subsequent Stop.
func (r *Registry) IsStarted() bool { return r.started }

// Start starts every service in dependency order.
func (r *Registry) Start() error {
	for _, svc := range r.ordered {
		log.Info("starting service", "name", svc.Name())
		if err := svc.Start(); err != nil {
			return fmt.Errorf("chainindex: start service %q: %w", svc.Name(), err)
		}
	}
	r.started = true
	return nil
}

// Stop stops every service in reverse dependency order, continuing past
// individual failures so every service gets a chance to shut down, and
// returns the first error encountered.
func (r *Registry) Stop() error {
	var firstErr error
	for i := len(r.ordered) - 1; i >= 0; i-- {
		svc := r.ordered[i]
		log.Info("stopping service", "name", svc.Name())
		if err := svc.Stop(); err != nil {
			log.Error("service stop failed", "name", svc.Name(), "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("chainindex: stop service %q: %w", svc.Name(), err)
			}
		}
	}
	r.started = false
	return firstErr
}
