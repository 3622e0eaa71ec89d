package services

import (
	"context"
	"errors"
	"fmt"

	"filemanager/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrActorNotFound = errors.New("employee not found")

// unrankedLevel is used for employees with neither their own level nor a
// position. Any level above zero is scoped.
const unrankedLevel = 1

// AuthorizationProvider is the source of who an actor is and what they may
// do. Results are read fresh on every call.
type AuthorizationProvider interface {
	LoadActor(ctx context.Context, employeeID string) (*models.Actor, error)
	CompanyName(ctx context.Context, companyID string) (string, error)
}

// AuthorizationService reads actors from the administration portal's
// employees, positions and companies collections.
type AuthorizationService struct {
	employeeCollection *mongo.Collection
	positionCollection *mongo.Collection
	companyCollection  *mongo.Collection
}

func NewAuthorizationService(db *mongo.Database) *AuthorizationService {
	return &AuthorizationService{
		employeeCollection: db.Collection("employees"),
		positionCollection: db.Collection("positions"),
		companyCollection:  db.Collection("companies"),
	}
}

// LoadActor builds the actor for an employee. The permission set is the
// union of the position's grants and the employee's own overrides.
func (s *AuthorizationService) LoadActor(ctx context.Context, employeeID string) (*models.Actor, error) {
	objID, err := primitive.ObjectIDFromHex(employeeID)
	if err != nil {
		return nil, fmt.Errorf("invalid employee ID: %w", ErrActorNotFound)
	}

	var employee models.Employee
	err = s.employeeCollection.FindOne(ctx, bson.M{"_id": objID, "is_active": true}).Decode(&employee)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrActorNotFound
		}
		return nil, fmt.Errorf("error fetching employee: %w", err)
	}

	var position *models.Position
	if employee.PositionID != nil {
		var p models.Position
		err := s.positionCollection.FindOne(ctx, bson.M{"_id": *employee.PositionID}).Decode(&p)
		switch {
		case err == nil:
			position = &p
		case err != mongo.ErrNoDocuments:
			return nil, fmt.Errorf("error fetching position: %w", err)
		}
	}

	return buildActor(&employee, position), nil
}

func (s *AuthorizationService) CompanyName(ctx context.Context, companyID string) (string, error) {
	objID, err := primitive.ObjectIDFromHex(companyID)
	if err != nil {
		return "", fmt.Errorf("invalid company ID: %w", err)
	}

	var company models.Company
	if err := s.companyCollection.FindOne(ctx, bson.M{"_id": objID}).Decode(&company); err != nil {
		if err == mongo.ErrNoDocuments {
			return "", fmt.Errorf("company not found")
		}
		return "", fmt.Errorf("error fetching company: %w", err)
	}
	if company.Name == "" {
		return "", fmt.Errorf("company %s has no name", companyID)
	}
	return company.Name, nil
}

// CompanyNames lists every company, for folder provisioning.
func (s *AuthorizationService) CompanyNames(ctx context.Context) ([]string, error) {
	cursor, err := s.companyCollection.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"name": 1}).SetSort(bson.M{"name": 1}))
	if err != nil {
		return nil, fmt.Errorf("error listing companies: %w", err)
	}
	defer cursor.Close(ctx)

	var companies []models.Company
	if err := cursor.All(ctx, &companies); err != nil {
		return nil, fmt.Errorf("error decoding companies: %w", err)
	}

	names := make([]string, 0, len(companies))
	for _, c := range companies {
		if c.Name != "" {
			names = append(names, c.Name)
		}
	}
	return names, nil
}

func buildActor(employee *models.Employee, position *models.Position) *models.Actor {
	level := unrankedLevel
	var grants []models.Permission

	if position != nil {
		level = position.HierarchyLevel
		grants = append(grants, position.Permissions...)
	}
	if employee.HierarchyLevel != nil {
		level = *employee.HierarchyLevel
	}
	grants = append(grants, employee.Permissions...)

	companyID := ""
	if employee.CompanyID != nil {
		companyID = employee.CompanyID.Hex()
	} else if position != nil && !position.CompanyID.IsZero() {
		companyID = position.CompanyID.Hex()
	}

	actor := models.NewActor(employee.ID.Hex(), level, companyID, grants...)
	actor.Name = employee.Name
	return actor
}
