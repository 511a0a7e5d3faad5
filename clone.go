package skein

// Cloner lets a type copy itself. Serializer.Clone calls Clone instead of
// round-tripping the value through tokens.
//
// The clone must not share mutable state with the receiver:
//
//	func (o Order) Clone() Order {
//	    items := make([]Item, len(o.Items))
//	    copy(items, o.Items)
//	    return Order{ID: o.ID, Items: items}
//	}
//
// Graphs with shared or cyclic references should not implement Cloner;
// the token round trip preserves their shape.
type Cloner[T any] interface {
	Clone() T
}
