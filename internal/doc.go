// Package internal holds small primitives shared by the engine: token and
// one-time-code generation and code hashing. Nothing here touches the store.
package internal
