package workflow

// Reducer defines how a field's current value absorbs an update produced by a node.
type Reducer[T any] func(current T, update T) T

// Built-in reducers

// LastValueReducer returns the most recent value (default).
func LastValueReducer[T any]() Reducer[T] {
	return func(_, update T) T {
		return update
	}
}

// AppendReducer appends slices together. The result never aliases current,
// so a snapshot taken before the merge keeps its own backing array.
func AppendReducer[T any]() Reducer[[]T] {
	return func(current, update []T) []T {
		if len(update) == 0 {
			return current
		}
		result := make([]T, 0, len(current)+len(update))
		result = append(result, current...)
		result = append(result, update...)
		return result
	}
}

// MaxReducer keeps the maximum value.
func MaxReducer[T ~int | ~int64 | ~float64]() Reducer[T] {
	return func(current, update T) T {
		if update > current {
			return update
		}
		return current
	}
}

// Optional carries an overwrite update. The zero value means "unchanged",
// which lets a node write an empty list or false without it being confused
// with "not touched".
type Optional[T any] struct {
	value T
	set   bool
}

// Set wraps v as an overwrite update.
func Set[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// IsSet reports whether the update carries a value.
func (o Optional[T]) IsSet() bool { return o.set }

// Value returns the carried value and whether it was set.
func (o Optional[T]) Value() (T, bool) { return o.value, o.set }

// Apply merges the update into current using r, or returns current untouched
// when the update is unset. A nil reducer means last-write-wins.
func (o Optional[T]) Apply(current T, r Reducer[T]) T {
	if !o.set {
		return current
	}
	if r == nil {
		return o.value
	}
	return r(current, o.value)
}
