// Package identitystore is the external Identity Store interface (§1,
// "deliberately out of scope"): the gateway only consumes user→org→team
// membership queries, never CRUD.
package identitystore

import "context"

// Store is the membership-query surface the gateway core depends on.
type Store interface {
	// UserTeams returns the team ids userID belongs to within orgID.
	UserTeams(ctx context.Context, userID, orgID string) ([]string, error)
	// UserOrgs returns the org ids userID belongs to.
	UserOrgs(ctx context.Context, userID string) ([]string, error)
}

// InMemory is a fake Store for tests and local development, seeded
// directly rather than through registration/invitation flows (those are
// out of scope per §1).
type InMemory struct {
	// Memberships maps userID -> orgID -> team ids.
	Memberships map[string]map[string][]string
}

func NewInMemory() *InMemory {
	return &InMemory{Memberships: map[string]map[string][]string{}}
}

func (s *InMemory) AddMembership(userID, orgID string, teamIDs ...string) {
	if s.Memberships[userID] == nil {
		s.Memberships[userID] = map[string][]string{}
	}
	s.Memberships[userID][orgID] = append(s.Memberships[userID][orgID], teamIDs...)
}

func (s *InMemory) UserTeams(_ context.Context, userID, orgID string) ([]string, error) {
	return append([]string(nil), s.Memberships[userID][orgID]...), nil
}

func (s *InMemory) UserOrgs(_ context.Context, userID string) ([]string, error) {
	orgs := make([]string, 0, len(s.Memberships[userID]))
	for org := range s.Memberships[userID] {
		orgs = append(orgs, org)
	}
	return orgs, nil
}
