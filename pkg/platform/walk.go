package platform

import (
	"context"
	"errors"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/locator"
	"github.com/devicelab-dev/bryndza/pkg/logger"
)

// RootFunc acquires the root node of a backend's tree. Failure is fatal for the walk.
type RootFunc func(ctx context.Context) (Node, error)

// WalkOptions tune a tree walk.
type WalkOptions struct {
	// MaxDepth stops descent below this depth (root is depth 0). 0 means unlimited.
	MaxDepth int
	// VisibleOnly skips invisible nodes when matching. Their children are still visited.
	VisibleOnly bool
	// Resolver handles XPath, CSS and image leaves. Nil makes them unsupported.
	Resolver LeafResolver
}

// FindFirst walks the tree depth-first in pre-order and returns the first node
// matching loc. It stops visiting as soon as the match is found.
func FindFirst(ctx context.Context, root RootFunc, loc locator.Locator, opts WalkOptions) (*core.Element, error) {
	found, err := walk(ctx, root, loc, opts, false)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, core.ElementNotFound(loc.Describe())
	}
	return found[0], nil
}

// FindAll walks the whole tree and returns every node matching loc in document
// order. No match yields an empty slice and no error.
func FindAll(ctx context.Context, root RootFunc, loc locator.Locator, opts WalkOptions) ([]*core.Element, error) {
	found, err := walk(ctx, root, loc, opts, true)
	if err != nil {
		return nil, err
	}
	if found == nil {
		found = []*core.Element{}
	}
	return found, nil
}

type walker struct {
	ctx   context.Context
	loc   locator.Locator
	opts  WalkOptions
	m     *matcher
	all   bool
	found []*core.Element
}

func walk(ctx context.Context, rootFn RootFunc, loc locator.Locator, opts WalkOptions, all bool) ([]*core.Element, error) {
	if err := loc.Validate(); err != nil {
		return nil, core.ConfigError(err.Error())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root, err := rootFn(ctx)
	if err != nil {
		return nil, err
	}
	defer root.Release()

	w := &walker{
		ctx:  ctx,
		loc:  loc,
		opts: opts,
		m:    newMatcher(ctx, opts.Resolver),
		all:  all,
	}

	p, err := root.Attributes()
	if err != nil {
		return nil, err
	}
	stop, err := w.check(p, nil)
	if err != nil || stop {
		return w.found, err
	}
	kids, err := root.Children()
	if err != nil {
		return nil, err
	}
	if _, err := w.visitChildren(kids, nil, 0); err != nil {
		return nil, err
	}
	return w.found, nil
}

// check evaluates the locator at one node and records a match.
func (w *walker) check(p Projection, path NodePath) (stop bool, err error) {
	if w.opts.VisibleOnly && !p.Visible {
		return false, nil
	}
	ok, err := w.m.match(w.loc, p)
	if err != nil {
		return true, err
	}
	if !ok {
		return false, nil
	}
	w.found = append(w.found, ToElement(p, path))
	return !w.all, nil
}

// visitChildren visits kids in order. Every kid is released exactly once: by
// visit for those reached, here for those left behind on early exit.
func (w *walker) visitChildren(kids []Node, parent NodePath, depth int) (stop bool, err error) {
	for i, kid := range kids {
		path := append(append(NodePath(nil), parent...), i)
		stop, err = w.visit(kid, path, depth+1)
		if err != nil || stop {
			for _, rest := range kids[i+1:] {
				rest.Release()
			}
			return stop, err
		}
	}
	return false, nil
}

func (w *walker) visit(node Node, path NodePath, depth int) (bool, error) {
	defer node.Release()

	if err := w.ctx.Err(); err != nil {
		return true, err
	}

	p, err := node.Attributes()
	if err != nil {
		logger.Warn("skipping subtree at %s: attributes: %v", path, err)
		return false, nil
	}
	if stop, err := w.check(p, path); err != nil || stop {
		return true, err
	}

	if w.opts.MaxDepth > 0 && depth >= w.opts.MaxDepth {
		return false, nil
	}
	kids, err := node.Children()
	if err != nil {
		logger.Warn("skipping children at %s: %v", path, err)
		return false, nil
	}
	return w.visitChildren(kids, path, depth)
}

func isNotFound(err error) bool {
	return errors.Is(err, core.ErrElementNotFound)
}
