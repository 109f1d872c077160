// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"errors"
	"fmt"
	"slices"

	"github.com/stacklok/ocs-custodian/cel"
	"github.com/stacklok/ocs-custodian/content"
	"github.com/stacklok/ocs-custodian/ocserr"
)

// genericRoute names the generic route in errors.
const genericRoute = "generic"

// Target is where and how an item is installed.
type Target struct {
	Category  content.Category `json:"category"`
	Directory string           `json:"directory"`
	// Fallbacks are tried in order when Directory is not writable.
	Fallbacks []string        `json:"fallbacks,omitempty"`
	Strategy  Strategy        `json:"strategy"`
	Collision CollisionPolicy `json:"collision"`
}

// Directories returns Directory followed by the fallbacks.
func (t *Target) Directories() []string {
	return append([]string{t.Directory}, t.Fallbacks...)
}

type compiledCandidate struct {
	dir      string
	eligible bool
	when     *cel.Condition
}

type compiledRoute struct {
	candidates []compiledCandidate
	strategy   Strategy
	collision  CollisionPolicy
}

// Router maps descriptors to install targets. Routing is pure: it reads
// nothing but the table it was built from and the descriptor.
type Router struct {
	routes  map[content.Category]*compiledRoute
	generic *compiledRoute
}

// New validates table, expands its directories against dirs and compiles its
// conditions. A nil table means DefaultTable.
func New(table *Table, dirs Dirs) (*Router, error) {
	if table == nil {
		table = DefaultTable()
	}
	if table.Version != 0 && table.Version != TableVersion {
		return nil, fmt.Errorf("unsupported routing table version %d", table.Version)
	}

	engine := cel.NewEngine()
	r := &Router{routes: make(map[content.Category]*compiledRoute, len(table.Routes))}

	var errs []error
	for category, route := range table.Routes {
		if !category.Known() {
			errs = append(errs, fmt.Errorf("routing table names unknown category %q", category))
			continue
		}
		compiled, err := compileRoute(engine, dirs, string(category), route)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.routes[category] = compiled
	}
	if table.Generic != nil {
		compiled, err := compileRoute(engine, dirs, genericRoute, table.Generic)
		if err != nil {
			errs = append(errs, err)
		}
		r.generic = compiled
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

// compileRoute expands and compiles route; errors name the route as name.
func compileRoute(engine *cel.Engine, dirs Dirs, name string, route *Route) (*compiledRoute, error) {
	if route == nil {
		return nil, fmt.Errorf("route %s is empty", name)
	}
	if !route.Strategy.Valid() {
		return nil, fmt.Errorf("route %s: unknown strategy %q", name, route.Strategy)
	}
	if !route.Collision.Valid() {
		return nil, fmt.Errorf("route %s: unknown collision policy %q", name, route.Collision)
	}
	if len(route.Candidates) == 0 {
		return nil, fmt.Errorf("route %s has no candidate directories", name)
	}

	out := &compiledRoute{strategy: route.Strategy, collision: route.Collision}
	for i, c := range route.Candidates {
		dir, err := dirs.Expand(c.Dir)
		if err != nil {
			return nil, fmt.Errorf("route %s candidate %d: %w", name, i, err)
		}
		cc := compiledCandidate{dir: dir, eligible: !c.System || c.Writable}
		if c.When != "" {
			cc.when, err = engine.Compile(c.When)
			var condErr *cel.ConditionError
			if errors.As(err, &condErr) {
				return nil, condErr.At(name, i)
			}
			if err != nil {
				return nil, fmt.Errorf("route %s candidate %d: %w", name, i, err)
			}
		}
		out.candidates = append(out.candidates, cc)
	}
	return out, nil
}

// Route picks the install target of desc. Known categories without a route,
// and items of category other when no generic route exists, fail with
// KindUnsupportedCategory, as does a route with no eligible directory.
func (r *Router) Route(desc *content.Descriptor) (*Target, error) {
	route, ok := r.routes[desc.Category]
	if !ok {
		if desc.Category.Known() || r.generic == nil {
			return nil, ocserr.Newf(ocserr.KindUnsupportedCategory, "no route for category %q", desc.Category)
		}
		route = r.generic
	}

	var dirs []string
	for _, c := range route.candidates {
		if !c.eligible || slices.Contains(dirs, c.dir) {
			continue
		}
		if c.when != nil {
			match, err := c.when.Matches(desc)
			if err != nil {
				return nil, ocserr.New(ocserr.KindInternal, fmt.Errorf("evaluating %q: %w", c.when.Source(), err))
			}
			if !match {
				continue
			}
		}
		dirs = append(dirs, c.dir)
	}
	if len(dirs) == 0 {
		return nil, ocserr.Newf(ocserr.KindUnsupportedCategory,
			"no eligible directory for category %q and install type %q", desc.Category, desc.InstallType)
	}

	return &Target{
		Category:  desc.Category,
		Directory: dirs[0],
		Fallbacks: dirs[1:],
		Strategy:  route.strategy,
		Collision: route.collision,
	}, nil
}

