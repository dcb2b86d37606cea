package store

import "time"

// Store is a retail destination a finished unit ships to. Code is the
// externally assigned short identifier.
type Store struct {
	ID        string
	Name      string
	Code      string
	IsActive  bool
	CreatedAt time.Time
}
