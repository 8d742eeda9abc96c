// Package store defines the persistence contract for run progress. Concrete
// repositories live elsewhere; this package must not import database drivers.
package store
