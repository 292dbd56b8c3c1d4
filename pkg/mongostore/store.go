package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/authzkit/authzkit/pkg/rbac"
)

const (
	defaultRolesCollection       = "roles"
	defaultAssignmentsCollection = "user_roles"
)

// Store implements rbac.Store on MongoDB. Roles embed their permissions as
// subdocuments; assignments live in a separate collection keyed by
// (user_id, role_id, organization_id).
type Store struct {
	roles       *mongo.Collection
	assignments *mongo.Collection
}

var _ rbac.Store = (*Store)(nil)

// StoreOption configures a Store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	rolesCollection       string
	assignmentsCollection string
}

// WithRolesCollection overrides the roles collection name.
func WithRolesCollection(name string) StoreOption {
	return func(c *storeConfig) {
		if name != "" {
			c.rolesCollection = name
		}
	}
}

// WithAssignmentsCollection overrides the assignments collection name.
func WithAssignmentsCollection(name string) StoreOption {
	return func(c *storeConfig) {
		if name != "" {
			c.assignmentsCollection = name
		}
	}
}

// NewStore creates a Store over the given database.
func NewStore(db *mongo.Database, opts ...StoreOption) *Store {
	cfg := storeConfig{
		rolesCollection:       defaultRolesCollection,
		assignmentsCollection: defaultAssignmentsCollection,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Store{
		roles:       db.Collection(cfg.rolesCollection),
		assignments: db.Collection(cfg.assignmentsCollection),
	}
}

// EnsureIndexes creates the indexes the store queries rely on. Safe to call
// on every startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.roles.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}, {Key: "organization_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "parent_roles", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongostore: create role indexes: %w", err)
	}

	_, err = s.assignments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "organization_id", Value: 1}}},
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "role_id", Value: 1},
				{Key: "organization_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("mongostore: create assignment indexes: %w", err)
	}
	return nil
}

func (s *Store) FindRoleByID(ctx context.Context, id string) (rbac.Role, error) {
	var doc roleDoc
	err := s.roles.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return rbac.Role{}, errors.Join(rbac.ErrRoleNotFound, fmt.Errorf("role id %q", id))
		}
		return rbac.Role{}, fmt.Errorf("mongostore: find role: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) FindRoleByName(ctx context.Context, name, organizationID string) (rbac.Role, error) {
	var doc roleDoc
	err := s.roles.FindOne(ctx, bson.M{"name": name, "organization_id": orgFilter(organizationID)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return rbac.Role{}, errors.Join(rbac.ErrRoleNotFound, fmt.Errorf("role name %q", name))
		}
		return rbac.Role{}, fmt.Errorf("mongostore: find role by name: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) FindRolesByIDs(ctx context.Context, ids []string) ([]rbac.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.roles.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("mongostore: find roles: %w", err)
	}
	return decodeRoles(ctx, cursor)
}

func (s *Store) FindChildRoles(ctx context.Context, parentID string) ([]rbac.Role, error) {
	cursor, err := s.roles.Find(ctx, bson.M{"parent_roles": parentID})
	if err != nil {
		return nil, fmt.Errorf("mongostore: find child roles: %w", err)
	}
	return decodeRoles(ctx, cursor)
}

func (s *Store) CreateRole(ctx context.Context, role rbac.Role) (rbac.Role, error) {
	if _, err := s.roles.InsertOne(ctx, toRoleDoc(role)); err != nil {
		return rbac.Role{}, fmt.Errorf("mongostore: create role: %w", err)
	}
	return role, nil
}

func (s *Store) UpdateRole(ctx context.Context, role rbac.Role) (rbac.Role, error) {
	res, err := s.roles.ReplaceOne(ctx, bson.M{"_id": role.ID}, toRoleDoc(role))
	if err != nil {
		return rbac.Role{}, fmt.Errorf("mongostore: update role: %w", err)
	}
	if res.MatchedCount == 0 {
		return rbac.Role{}, errors.Join(rbac.ErrRoleNotFound, fmt.Errorf("role id %q", role.ID))
	}
	return role, nil
}

func (s *Store) DeleteRole(ctx context.Context, id string) error {
	res, err := s.roles.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongostore: delete role: %w", err)
	}
	if res.DeletedCount == 0 {
		return errors.Join(rbac.ErrRoleNotFound, fmt.Errorf("role id %q", id))
	}
	if _, err := s.assignments.DeleteMany(ctx, bson.M{"role_id": id}); err != nil {
		return fmt.Errorf("mongostore: delete role assignments: %w", err)
	}
	return nil
}

func (s *Store) AddPermissionsToRole(ctx context.Context, roleID string, permissions []rbac.Permission) (rbac.Role, error) {
	role, err := s.FindRoleByID(ctx, roleID)
	if err != nil {
		return rbac.Role{}, err
	}

	existing := make(map[string]bool, len(role.Permissions))
	for _, p := range role.Permissions {
		existing[p.ID] = true
	}
	for _, p := range permissions {
		if !existing[p.ID] {
			existing[p.ID] = true
			role.Permissions = append(role.Permissions, p)
		}
	}

	return s.UpdateRole(ctx, role)
}

func (s *Store) RemovePermissionsFromRole(ctx context.Context, roleID string, permissionIDs []string) (rbac.Role, error) {
	update := bson.M{"$pull": bson.M{"permissions": bson.M{"id": bson.M{"$in": permissionIDs}}}}
	res, err := s.roles.UpdateOne(ctx, bson.M{"_id": roleID}, update)
	if err != nil {
		return rbac.Role{}, fmt.Errorf("mongostore: remove permissions: %w", err)
	}
	if res.MatchedCount == 0 {
		return rbac.Role{}, errors.Join(rbac.ErrRoleNotFound, fmt.Errorf("role id %q", roleID))
	}
	return s.FindRoleByID(ctx, roleID)
}

func (s *Store) FindUserRoleAssignments(ctx context.Context, userID, organizationID string) ([]rbac.UserRoleAssignment, error) {
	filter := bson.M{"user_id": userID}
	if organizationID != "" {
		// Global assignments apply in every organization.
		filter["$or"] = bson.A{
			bson.M{"organization_id": organizationID},
			bson.M{"organization_id": bson.M{"$exists": false}},
			bson.M{"organization_id": ""},
		}
	}

	cursor, err := s.assignments.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongostore: find assignments: %w", err)
	}

	var docs []assignmentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: decode assignments: %w", err)
	}
	out := make([]rbac.UserRoleAssignment, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out, nil
}

func (s *Store) AssignRoleToUser(ctx context.Context, assignment rbac.UserRoleAssignment) (rbac.UserRoleAssignment, error) {
	filter := bson.M{
		"user_id":         assignment.UserID,
		"role_id":         assignment.RoleID,
		"organization_id": orgFilter(assignment.OrganizationID),
	}

	// Re-assigning the same (user, role, org) refreshes the existing row.
	var existing assignmentDoc
	err := s.assignments.FindOne(ctx, filter).Decode(&existing)
	switch {
	case err == nil:
		assignment.ID = existing.ID
		if _, err := s.assignments.ReplaceOne(ctx, bson.M{"_id": existing.ID}, toAssignmentDoc(assignment)); err != nil {
			return rbac.UserRoleAssignment{}, fmt.Errorf("mongostore: refresh assignment: %w", err)
		}
	case errors.Is(err, mongo.ErrNoDocuments):
		if _, err := s.assignments.InsertOne(ctx, toAssignmentDoc(assignment)); err != nil {
			return rbac.UserRoleAssignment{}, fmt.Errorf("mongostore: create assignment: %w", err)
		}
	default:
		return rbac.UserRoleAssignment{}, fmt.Errorf("mongostore: find assignment: %w", err)
	}

	return assignment, nil
}

func (s *Store) RemoveRoleFromUser(ctx context.Context, userID, roleID, organizationID string) error {
	res, err := s.assignments.DeleteOne(ctx, bson.M{
		"user_id":         userID,
		"role_id":         roleID,
		"organization_id": orgFilter(organizationID),
	})
	if err != nil {
		return fmt.Errorf("mongostore: remove assignment: %w", err)
	}
	if res.DeletedCount == 0 {
		return errors.Join(rbac.ErrAssignmentNotFound,
			fmt.Errorf("user %q role %q organization %q", userID, roleID, organizationID))
	}
	return nil
}

func (s *Store) UserHasRole(ctx context.Context, userID, roleID, organizationID string) (bool, error) {
	filter := bson.M{"user_id": userID, "role_id": roleID}
	if organizationID != "" {
		// Global assignments apply in every organization.
		filter["$or"] = bson.A{
			bson.M{"organization_id": organizationID},
			bson.M{"organization_id": bson.M{"$exists": false}},
			bson.M{"organization_id": ""},
		}
	}

	cursor, err := s.assignments.Find(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("mongostore: find assignments: %w", err)
	}
	var docs []assignmentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return false, fmt.Errorf("mongostore: decode assignments: %w", err)
	}

	now := time.Now()
	for _, doc := range docs {
		if doc.toDomain().EffectiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

// orgFilter matches documents where the field is absent, empty, or equal,
// so global rows written without the field behave like empty-string rows.
func orgFilter(organizationID string) any {
	if organizationID == "" {
		return bson.M{"$in": bson.A{"", nil}}
	}
	return organizationID
}

func decodeRoles(ctx context.Context, cursor *mongo.Cursor) ([]rbac.Role, error) {
	var docs []roleDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: decode roles: %w", err)
	}
	roles := make([]rbac.Role, len(docs))
	for i, d := range docs {
		roles[i] = d.toDomain()
	}
	return roles, nil
}
