/*
Package domain defines the core types of the WeaveLang interpreter.

It holds the interpreter's State (scalar model, vector model, tension history,
coherence and primitives), the Events emitted to observers, and the error
taxonomy (SyntaxError, ResourceError and their sentinels).

These types carry no behavior beyond bookkeeping; evaluation lives in the
runtime package and persistence in the adapters.
*/
package domain
