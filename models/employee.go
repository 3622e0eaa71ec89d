package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Company struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// Position is a job position. Its permissions are inherited by every
// employee holding it.
type Position struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name           string             `bson:"name" json:"name"`
	CompanyID      primitive.ObjectID `bson:"company_id" json:"company_id"`
	HierarchyLevel int                `bson:"hierarchy_level" json:"hierarchy_level"`
	Permissions    []Permission       `bson:"permissions" json:"permissions"`
}

type Employee struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name           string              `bson:"name" json:"name"`
	Email          string              `bson:"email" json:"email"`
	CompanyID      *primitive.ObjectID `bson:"company_id,omitempty" json:"company_id,omitempty"`
	PositionID     *primitive.ObjectID `bson:"position_id,omitempty" json:"position_id,omitempty"`
	HierarchyLevel *int                `bson:"hierarchy_level,omitempty" json:"hierarchy_level,omitempty"` // overrides the position level
	Permissions    []Permission        `bson:"permissions" json:"permissions"`                             // individual overrides
	IsActive       bool                `bson:"is_active" json:"is_active"`
	CreatedAt      time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `bson:"updated_at" json:"updated_at"`
}

// Actor is the authenticated employee behind one request. It is built
// fresh per request and never modified afterwards.
type Actor struct {
	ID             string
	Name           string
	HierarchyLevel int
	CompanyID      string
	Permissions    map[Permission]struct{}
}

func NewActor(id string, level int, companyID string, perms ...Permission) *Actor {
	a := &Actor{
		ID:             id,
		HierarchyLevel: level,
		CompanyID:      companyID,
		Permissions:    make(map[Permission]struct{}, len(perms)),
	}
	for _, p := range perms {
		a.Permissions[p] = struct{}{}
	}
	return a
}

func (a *Actor) Has(p Permission) bool {
	_, ok := a.Permissions[p]
	return ok
}

// IsRoot reports an unrestricted administrator.
func (a *Actor) IsRoot() bool {
	return a.HierarchyLevel == 0
}

// RequestMeta is client information recorded with audit entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}
