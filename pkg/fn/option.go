// Package fn provides small functional-style generic helpers used across the
// relay core in place of nil-able pointers and naked (value, ok) returns.
package fn

// Option represents a value that may or may not be present. It is used
// throughout the core wherever spec.md describes an optional return, such as
// ChainReadChannel.channel_by_id returning Option<Channel>.
type Option[A any] struct {
	isSome bool
	some   A
}

// Some injects a value into a present Option.
func Some[A any](a A) Option[A] {
	return Option[A]{isSome: true, some: a}
}

// None constructs an empty Option.
func None[A any]() Option[A] {
	return Option[A]{}
}

// IsSome reports whether the Option carries a value.
func (o Option[A]) IsSome() bool {
	return o.isSome
}

// IsNone reports whether the Option is empty.
func (o Option[A]) IsNone() bool {
	return !o.isSome
}

// UnwrapOr extracts the value, falling back to the supplied default.
func (o Option[A]) UnwrapOr(a A) A {
	if o.isSome {
		return o.some
	}
	return a
}

// UnwrapOrErr extracts the value, or returns the supplied error if empty.
func (o Option[A]) UnwrapOrErr(err error) (A, error) {
	if !o.isSome {
		var zero A
		return zero, err
	}
	return o.some, nil
}

// Unpack returns the wrapped value and whether it was present, for callers
// that prefer the comma-ok idiom over UnwrapOr/UnwrapOrErr.
func (o Option[A]) Unpack() (A, bool) {
	return o.some, o.isSome
}

// WhenSome runs f against the wrapped value if present.
func (o Option[A]) WhenSome(f func(A)) {
	if o.isSome {
		f(o.some)
	}
}

// Map transforms the wrapped value, preserving emptiness.
func Map[A, B any](o Option[A], f func(A) B) Option[B] {
	if o.isSome {
		return Some(f(o.some))
	}
	return None[B]()
}
