// Package repository implements relational data access for sources,
// documents, chunks and crawl jobs.
package repository

import "errors"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")
