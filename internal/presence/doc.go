// Package presence tracks which open connection corresponds to which logical
// peer, and publishes the full presence set after every change.
//
// The registry is the single source of truth for "who is online". Only the
// connection lifecycle (register, disconnect) mutates it; call routing only
// reads it.
package presence
