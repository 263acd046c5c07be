// Package fallback runs ordered strategy chains: each step is tried in turn
// and the first one that yields a value wins.
package fallback

import "context"

// Step is one strategy in a chain
type Step[T any] struct {
	// Name identifies the step in logs and results
	Name string

	// Try returns the step's value and whether it produced one
	Try func(ctx context.Context) (T, bool)
}

// Of builds a Step
func Of[T any](name string, try func(ctx context.Context) (T, bool)) Step[T] {
	return Step[T]{Name: name, Try: try}
}

// Value is a step that always yields v
func Value[T any](name string, v T) Step[T] {
	return Step[T]{Name: name, Try: func(context.Context) (T, bool) { return v, true }}
}

// First runs steps in order and returns the first value produced along with
// the name of the step that produced it. Later steps never run once one
// succeeds. It stops early if ctx is done.
func First[T any](ctx context.Context, steps ...Step[T]) (T, string, bool) {
	var zero T
	for _, s := range steps {
		if ctx.Err() != nil {
			return zero, "", false
		}
		if s.Try == nil {
			continue
		}
		if v, ok := s.Try(ctx); ok {
			return v, s.Name, true
		}
	}
	return zero, "", false
}

// FirstValue is First without the step name
func FirstValue[T any](ctx context.Context, steps ...Step[T]) (T, bool) {
	v, _, ok := First(ctx, steps...)
	return v, ok
}

// NonEmpty adapts a string-returning probe into a step that succeeds only on
// a non-empty result
func NonEmpty(name string, probe func(ctx context.Context) string) Step[string] {
	return Step[string]{Name: name, Try: func(ctx context.Context) (string, bool) {
		v := probe(ctx)
		return v, v != ""
	}}
}
