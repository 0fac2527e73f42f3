package admin

import (
	"reflect"
	"sort"
	"sync"

	"github.com/km-arc/go-compose/framework/binding"
	"github.com/km-arc/go-compose/framework/compose"
	"github.com/km-arc/go-compose/framework/transition"
)

// Catalog names the alternative implementations an operator may
// transition an abstraction to.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*offers
}

type offers struct {
	abstraction reflect.Type
	to          map[string]func(*compose.Root) (bool, error)
	revert      func(*compose.Root) (bool, error)
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]*offers)}
}

// Offer makes ctor available under name for abstraction A. Offering the
// same name twice replaces the constructor.
//
//	admin.Offer[Store](catalog, "memory", newMemoryStore)
func Offer[A, I any](c *Catalog, name string, ctor func(binding.Resolver) (I, error)) {
	t := transition.TypeOf[A]()

	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.entries[t.String()]
	if !ok {
		o = &offers{
			abstraction: t,
			to:          make(map[string]func(*compose.Root) (bool, error)),
			revert:      compose.Revert[A],
		}
		c.entries[t.String()] = o
	}
	o.to[name] = func(root *compose.Root) (bool, error) {
		return compose.Transition[A](root, ctor)
	}
}

// lookup finds offers by the abstraction's full type string or its bare
// name.
func (c *Catalog) lookup(abstraction string) (*offers, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if o, ok := c.entries[abstraction]; ok {
		return o, true
	}
	for _, o := range c.entries {
		if o.abstraction.Name() == abstraction {
			return o, true
		}
	}
	return nil, false
}

// Names returns the offered names for an abstraction, sorted.
func (c *Catalog) Names(abstraction reflect.Type) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.entries[abstraction.String()]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(o.to))
	for n := range o.to {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// target returns the transition registered under name. ok reports whether
// the abstraction is in the catalog at all.
func (c *Catalog) target(abstraction, name string) (to func(*compose.Root) (bool, error), ok bool) {
	o, ok := c.lookup(abstraction)
	if !ok {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return o.to[name], true
}

// reverter returns the revert function for an abstraction.
func (c *Catalog) reverter(abstraction string) (func(*compose.Root) (bool, error), bool) {
	o, ok := c.lookup(abstraction)
	if !ok {
		return nil, false
	}
	return o.revert, true
}
