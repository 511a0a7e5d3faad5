package skein

import (
	"iter"
	"reflect"
)

// Pair is a key/value pair carried as a value, not as a collection entry.
type Pair[K, V any] struct {
	Key   K
	Value V
}

// NewPair returns a Pair of k and v.
func NewPair[K, V any](k K, v V) Pair[K, V] {
	return Pair[K, V]{Key: k, Value: v}
}

func (Pair[K, V]) isPair() {}

// Set is an unordered collection of distinct elements. Sets serialize as a
// collection of Item properties, sorted when the element kind is ordered.
type Set[E comparable] map[E]struct{}

// NewSet returns a Set holding elems.
func NewSet[E comparable](elems ...E) Set[E] {
	s := make(Set[E], len(elems))
	for _, e := range elems {
		s[e] = struct{}{}
	}
	return s
}

// Add inserts e.
func (s Set[E]) Add(e E) { s[e] = struct{}{} }

// Has reports whether e is present.
func (s Set[E]) Has(e E) bool {
	_, ok := s[e]
	return ok
}

// Len returns the number of elements.
func (s Set[E]) Len() int { return len(s) }

// All iterates the elements in no particular order.
func (s Set[E]) All() iter.Seq[E] {
	return func(yield func(E) bool) {
		for e := range s {
			if !yield(e) {
				return
			}
		}
	}
}

func (Set[E]) isSet() {}

var (
	pairMarker = reflect.TypeFor[interface{ isPair() }]()
	setMarker  = reflect.TypeFor[interface{ isSet() }]()
)

func isPairType(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t.NumField() == 2 && t.Implements(pairMarker)
}

func isSetType(t reflect.Type) bool {
	return t.Kind() == reflect.Map && t.Implements(setMarker)
}
