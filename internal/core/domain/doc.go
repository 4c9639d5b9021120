// Package domain defines the entities the engine works with: documents and
// their chunks, search queries with payload filters, ingest and mutation
// results, events, health reports and the error taxonomy shared by every
// layer.
//
// Domain imports only the standard library. Every other package may import
// domain; domain imports none of them.
package domain
