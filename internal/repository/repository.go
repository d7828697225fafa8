// Package repository holds the pgx data-access layer. Every operation is a
// single statement; callers must check errors before assuming a write took
// effect.
package repository

import "errors"

// ErrNotFound is the store-agnostic missing-row signal, translated from
// pgx.ErrNoRows at this boundary.
var ErrNotFound = errors.New("repository: not found")
