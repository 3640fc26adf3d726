// Package assets holds the static resource table served by the edge router.
//
// The table is built once at startup from a YAML manifest that lists
// (path, content type, file) triples plus a single default document. After
// Load returns, a Table is never modified and may be shared by any number of
// goroutines. Lookups that miss resolve to the default document, so Resolve
// never fails.
package assets
