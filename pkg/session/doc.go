/*
Package session runs WeaveLang ticks against persisted interpreter state.

A Manager loads a session from a ports.StateStore, executes one tick through a
fresh weave.Interpreter and saves the result, all while holding a per-session
lock. With a ports.DistributedLocker the same guarantee holds across replicas
that share a store.
*/
package session
