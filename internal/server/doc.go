// Package server implements the real-time chat engine: the connection
// registry, presence broadcaster, message router, and username cache, plus
// the HTTP surface (WebSocket upgrade and REST endpoints) that exposes them.
//
// The implementation is organized into specialized files for the registry,
// hub, clients, routing, and HTTP handlers to keep the codebase maintainable
// and testable as the project grows.
package server
