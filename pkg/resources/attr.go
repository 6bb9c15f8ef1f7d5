package resources

import (
	"fmt"

	"github.com/openfroyo/deckhand/pkg/engine"
)

type attrState int

const (
	attrUnresolved attrState = iota
	attrResolving
	attrResolved
)

// Attr is one declared attribute. Its value is the explicit value when
// one was declared, else the lazy default, else the static default. The
// lazy default and the check run once; the outcome is memoized, errors
// included.
type Attr[T any] struct {
	name     string
	static   T
	explicit bool
	value    T
	lazy     func() (T, error)
	check    func(T) error
	state    attrState
	err      error
}

// NewAttr creates an attribute with a static default.
func NewAttr[T any](name string, static T) *Attr[T] {
	return &Attr[T]{name: name, static: static}
}

// Name returns the attribute name.
func (a *Attr[T]) Name() string { return a.name }

// Set declares an explicit value.
func (a *Attr[T]) Set(v T) *Attr[T] {
	a.value, a.explicit = v, true
	return a
}

// SetIf declares v when ok.
func (a *Attr[T]) SetIf(ok bool, v T) *Attr[T] {
	if ok {
		return a.Set(v)
	}
	return a
}

// Default installs a lazy default. It may read other attributes.
func (a *Attr[T]) Default(fn func() (T, error)) *Attr[T] {
	a.lazy = fn
	return a
}

// Check adds a validator run on the resolved value. Validators run in the
// order they were added; the first error wins.
func (a *Attr[T]) Check(fn func(T) error) *Attr[T] {
	prev := a.check
	if prev == nil {
		a.check = fn
		return a
	}
	a.check = func(v T) error {
		if err := prev(v); err != nil {
			return err
		}
		return fn(v)
	}
	return a
}

// Explicit reports whether a value was declared.
func (a *Attr[T]) Explicit() bool { return a.explicit }

// Get resolves the attribute. A default that reaches back to its own
// attribute fails with a ValidationError.
func (a *Attr[T]) Get() (T, error) {
	switch a.state {
	case attrResolved:
		return a.value, a.err
	case attrResolving:
		var zero T
		return zero, engine.NewValidationError(
			fmt.Sprintf("default for %s depends on itself", a.name), nil)
	}

	a.state = attrResolving
	v, err := a.static, error(nil)
	switch {
	case a.explicit:
		v = a.value
	case a.lazy != nil:
		v, err = a.lazy()
	}
	if err == nil && a.check != nil {
		err = a.check(v)
	}

	a.value, a.err, a.state = v, err, attrResolved
	return v, err
}

// resolver collects the first resolution error of a resource.
type resolver struct {
	id  engine.ResourceID
	err error
}

func get[T any](r *resolver, a *Attr[T]) T {
	v, err := a.Get()
	if err != nil && r.err == nil {
		var ee *engine.EngineError
		if e, ok := err.(*engine.EngineError); ok {
			ee = e
		} else {
			ee = engine.NewValidationError(fmt.Sprintf("invalid %s", a.name), err)
		}
		if ee.Details == nil || ee.Details["attribute"] == nil {
			ee = ee.WithDetail("attribute", a.name)
		}
		r.err = engine.Attach(ee, r.id.String(), "resolve")
	}
	return v
}
