package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"

	"ticket-marketplace/internal/policy"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
)

// IdentityService persists users and their single role. Role changes
// are admin-initiated and never self-targeted; both rules live in the
// policy package and are enforced here.
type IdentityService struct {
	app core.App
}

func NewIdentityService(app core.App) *IdentityService {
	return &IdentityService{app: app}
}

// List returns all users, newest first. Admin only.
func (s *IdentityService) List(ctx context.Context, actor *models.User, limit, offset int) ([]*models.User, error) {
	if d := policy.CanPerform(actor, policy.ActionListUsers, policy.Target{}); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", status.ErrAuthorization, d.Reason)
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	records, err := s.app.FindRecordsByFilter("users", "", "-created", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]*models.User, 0, len(records))
	for _, record := range records {
		users = append(users, UserFromRecord(record))
	}
	return users, nil
}

// ChangeRole moves a user to a new role. Marking a vendor as fraud is a
// role change like any other and follows the same rules.
func (s *IdentityService) ChangeRole(ctx context.Context, actor *models.User, targetID string, newRole models.Role) (*models.User, error) {
	if !newRole.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", status.ErrValidation, newRole)
	}

	record, err := s.app.FindRecordById("users", targetID)
	if err != nil {
		return nil, fmt.Errorf("%w: user %s not found", status.ErrValidation, targetID)
	}

	target := policy.Target{UserEmail: record.GetString("email")}
	if d := policy.CanPerform(actor, policy.ActionChangeRole, target); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", status.ErrAuthorization, d.Reason)
	}

	oldRole := record.GetString("role")
	record.Set("role", string(newRole))
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}

	slog.Info("role changed",
		"user", targetID, "from", oldRole, "to", newRole, "admin", actor.Email)

	return UserFromRecord(record), nil
}

// RecordLogin stamps last_login; wired to the auth request hook.
func (s *IdentityService) RecordLogin(ctx context.Context, record *core.Record) error {
	record.Set("last_login", types.NowDateTime())
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return nil
}

// UserFromRecord maps an auth record to the domain model.
func UserFromRecord(record *core.Record) *models.User {
	if record == nil {
		return nil
	}

	user := &models.User{
		ID:          record.Id,
		Email:       record.GetString("email"),
		DisplayName: record.GetString("display_name"),
		PhotoURL:    record.GetString("photo_url"),
		Role:        models.Role(record.GetString("role")),
		CreatedAt:   record.GetDateTime("created").Time(),
	}

	if dt := record.GetDateTime("last_login"); !dt.IsZero() {
		t := dt.Time()
		user.LastLogin = &t
	}

	return user
}
