// Package pserial implements the PHP serialize() wire format as a
// codec over a closed dynamic value model.
//
// # Data Model
//
// Scalars: null, bool, int (int64), double (float64), string (bytes)
// Containers: array (ordered key/value pairs, int or string keys),
// struct (class name + ordered named fields)
//
// Array and struct order is significant and always preserved.
// Duplicate array keys are legal and kept.
//
// # Wire Syntax
//
//	Null:    N;
//	Bool:    b:1;  b:0;
//	Int:     i:-15;
//	Double:  d:0.0032;  d:130000;  d:1.0E+25;  d:INF;
//	String:  s:13:"Hello, world;";        (length in bytes)
//	Array:   a:2:{i:0;s:1:"a";s:1:"k";N;}
//	Struct:  O:8:"stdClass":1:{s:5:"hello";b:1;}
//
// Doubles use the shortest decimal that parses back to the same
// float64. String lengths count bytes, never characters, and are
// authoritative: the payload is not scanned for quotes.
//
// # Example
//
//	v := pserial.Struct("stdClass",
//	    pserial.F("hello", pserial.Bool(true)),
//	    pserial.F("world", pserial.Null()),
//	)
//	text, err := pserial.Encode(v)
//	// O:8:"stdClass":2:{s:5:"hello";b:1;s:5:"world";N;}
//
//	back, err := pserial.Decode(text)
//	pserial.Equal(v, back) // true
//
// # Hardening
//
// Decoding untrusted input is bounded: nesting depth is capped
// (DefaultMaxDepth, see WithMaxDepth), counts larger than the remaining
// input are rejected before allocation, and every failure is an error,
// never a panic. Decoded structs stay generic unless the caller resolves
// them against a Registry.
package pserial
