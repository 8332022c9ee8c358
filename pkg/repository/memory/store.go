// Package memory implements the stores on top of go-memdb. It serves tests
// and the single-process development server.
package memory

import (
	"fmt"

	"github.com/hashicorp/go-memdb"
	"github.com/tendant/teamspace/pkg/changefeed"
)

// Store is an in-memory database holding every table.
type Store struct {
	db   *memdb.MemDB
	feed *changefeed.Broker[changefeed.MembershipChange]
}

// New creates an empty store. Membership changes are published to feed
// when it is non-nil.
func New(feed *changefeed.Broker[changefeed.MembershipChange]) (*Store, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}
	return &Store{db: db, feed: feed}, nil
}

// Accounts returns the account store view.
func (s *Store) Accounts() *Accounts { return &Accounts{s} }

// Sessions returns the refresh session store view.
func (s *Store) Sessions() *Sessions { return &Sessions{s} }

// Profiles returns the profile store view.
func (s *Store) Profiles() *Profiles { return &Profiles{s} }

// Workspaces returns the workspace store view.
func (s *Store) Workspaces() *Workspaces { return &Workspaces{s} }

// Memberships returns the membership store view.
func (s *Store) Memberships() *Memberships { return &Memberships{s} }
