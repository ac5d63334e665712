package models

// Tables emitting change notifications.
const (
	TableContributions     = "contributions"
	TableEvents            = "events"
	TableMembers           = "members"
	TableBudgetAssignments = "budget_assignments"
)

// Change is a row-level change notification. It only tells a reader that
// something moved; the row itself must be re-read from the store.
type Change struct {
	Table      string `json:"table"`
	EventID    string `json:"event_id"`
	DocumentID string `json:"document_id"`
	Operation  string `json:"operation"`
}
