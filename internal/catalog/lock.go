package catalog

import "gorm.io/gorm/clause"

// lockingClause returns a SELECT ... FOR UPDATE clause, used to serialize
// the merge in UpdateSessionExternalMCPSession.
func lockingClause() clause.Expression {
	return clause.Locking{Strength: "UPDATE"}
}
