// Package ingest implements the page archiving loop: probe the object store
// for an already captured page, fetch it from the article API, stop on the
// first empty page, and upload everything else as pretty-printed JSON.
package ingest
