package runtime

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

type parseFunc func(source, name string) (*Template, error)

// templateCache stores parsed templates keyed by exact, case sensitive
// name. A hit never re-invokes the loader; concurrent misses for the same
// name are collapsed into a single load and parse.
type templateCache struct {
	mu     sync.RWMutex
	gen    uint64
	loader LoaderFunc
	// sources holds templates registered directly on the environment. They
	// survive cache invalidation and shadow the loader.
	sources map[string]string
	parsed  map[string]*Template
	group   singleflight.Group
}

func newTemplateCache() *templateCache {
	return &templateCache{
		sources: map[string]string{},
		parsed:  map[string]*Template{},
	}
}

// addSource registers an in-memory template and drops any cached parse of
// the same name.
func (c *templateCache) addSource(name, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[name] = source
	delete(c.parsed, name)
}

func (c *templateCache) removeSource(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sources, name)
	delete(c.parsed, name)
}

// setLoader swaps the loader and clears the parsed cache in one step.
func (c *templateCache) setLoader(loader LoaderFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loader = loader
	c.gen++
	c.parsed = map[string]*Template{}
}

// invalidate clears the parsed cache without touching loader or sources.
func (c *templateCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.parsed = map[string]*Template{}
}

// lookup resolves a template, loading and parsing at most once per name
// between invalidations.
func (c *templateCache) lookup(name string, parse parseFunc) (*Template, error) {
	c.mu.RLock()
	tmpl, ok := c.parsed[name]
	gen := c.gen
	loader := c.loader
	c.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		c.mu.RLock()
		tmpl, ok := c.parsed[name]
		source, pinned := c.sources[name]
		c.mu.RUnlock()
		if ok {
			return tmpl, nil
		}
		if !pinned {
			if loader == nil {
				return nil, templateNotFound(name)
			}
			var err error
			source, err = loader(name)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return nil, NewError(TemplateNotFound, err.Error()).WithName(name).WithCause(err)
				}
				return nil, Errorf(RuntimeError, "loader failed for %q", name).WithCause(err)
			}
		}
		tmpl, err := parse(source, name)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.parsed[name] = tmpl
		}
		c.mu.Unlock()
		return tmpl, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Template), nil
}

func templateNotFound(name string) error {
	return NewError(TemplateNotFound, fmt.Sprintf("template %q not found", name)).
		WithName(name).
		WithCause(ErrNotFound)
}
