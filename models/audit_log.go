package models

import "time"

// AuditRecord is an append-only entry written after every state changing
// file operation.
type AuditRecord struct {
	ID        string        `bson:"_id" json:"id"`
	ActorID   string        `bson:"actor_id" json:"actor_id"`
	CompanyID string        `bson:"company_id,omitempty" json:"company_id,omitempty"`
	Operation OperationKind `bson:"operation" json:"operation"`
	Paths     []string      `bson:"paths" json:"paths"`
	IP        string        `bson:"ip" json:"ip"`
	UserAgent string        `bson:"user_agent" json:"user_agent"`
	Timestamp time.Time     `bson:"timestamp" json:"timestamp"`
}
