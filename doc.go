// Package skein serializes arbitrary, possibly cyclic, object graphs into a
// self-describing binary token stream and back.
//
// The package preserves reference identity (two fields pointing at the same
// instance decode to the same instance), accepts new types through pluggable
// providers, and supports polymorphic values without baking concrete type
// lists into the format.
//
// # Tokens
//
// Every value becomes a Token. A token is a scalar (integers, floats,
// Decimal, bool, Char, UUID, Instant, time.Time, time.Duration, Index),
// Nothing, or a reference carrying a string, a byte slice, an inline
// ComplexType, or a ComplexTypeReference pointing back at an object that
// was already emitted.
//
// # Providers
//
// A Provider turns one type into an ordered sequence of named properties and
// rebuilds it from them. Built-in providers cover slices and arrays (Count
// followed by Item entries), maps (Key/Value entries), Pair, Set,
// *list.List, *url.URL and any type implementing SelfDescribing. Struct types
// can be registered through RegisterStruct, which reads `skein` struct tags:
//
//	type Account struct {
//	    ID    string   `skein:"id,required"`
//	    Owner *Person  `skein:"owner"`
//	    Cache []byte   `skein:"-"`
//	}
//
//	reg := skein.NewRegistry()
//	_ = skein.RegisterStruct[Account](reg, "account")
//
// Provider lookup for a type tries, in order: providers registered on the
// SerializationContext, known providers declared by the type or by any
// container currently being processed, providers registered on the Registry
// (including interface providers adapted to concrete implementations), and
// finally the built-in shapes.
//
// # Type mappings
//
// Complex values carry a TypeMapping, a portable tree of (kind, name,
// parameters) produced by a CompositeTypeMapper. Built-in mappers handle
// primitives, generic shapes (array, dictionary, list, set, pair, pointer),
// registered identifiers and, as a last resort, fully qualified Go type
// names.
//
// # Basic Usage
//
//	reg := skein.NewRegistry()
//	data, err := skein.Marshal(graph, skein.NewSerializationContext(reg))
//	...
//	restored, err := skein.Unmarshal[*Graph](data, skein.NewSerializationContext(reg))
//
// A SerializationContext holds the reference table, the string table and the
// active type stack for a single operation. It is not safe for concurrent use;
// create one per operation. A Registry is safe for concurrent use and is
// meant to be shared.
//
// # Typed Serializer
//
// Serializer[T] wraps the package functions with optional compression
// (zstd, lz4), encryption (AES-GCM, envelope) and fingerprints (SHA-256,
// SHA-512, BLAKE2b, BLAKE3):
//
//	s := skein.NewSerializer[*Graph](reg).
//	    SetCompression(skein.CompressZstd).
//	    SetEncryptor(aes)
//	data, err := s.Marshal(ctx, graph)
//
// # Documents
//
// ExportDocument renders a token tree as a kind-preserving Node document that
// any Codec can marshal. The json, xml, yaml, msgpack, bson and cbor
// submodules provide codecs.
package skein
