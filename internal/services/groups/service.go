package groups

import (
	"context"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

// groupNameRe is the allowed group name shape: lowercase slug, no spaces.
var groupNameRe = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,63}$`)

// Service manages permission groups and token issuance. All mutation is
// admin-only; the reserved admin and public groups cannot be renamed or
// deactivated.
type Service struct {
	groups interfaces.GroupStorage
	auth   interfaces.AuthService
	logger arbor.ILogger
}

func NewService(groups interfaces.GroupStorage, auth interfaces.AuthService, logger arbor.ILogger) *Service {
	return &Service{groups: groups, auth: auth, logger: logger}
}

// Create registers a new permission group. Admin only.
func (s *Service) Create(ctx context.Context, auth *models.AuthContext, name string) (*models.Group, error) {
	if !auth.IsAdmin {
		return nil, models.NewServiceError(models.ErrAdminRequired, "group management requires admin")
	}
	if !groupNameRe.MatchString(name) {
		return nil, models.NewServiceError(models.ErrInvalidInput, "group names are lowercase slugs, 2-64 chars")
	}
	if name == models.GroupAdmin || name == models.GroupPublic {
		return nil, models.NewServiceError(models.ErrSchemaViolation, "group name "+name+" is reserved")
	}
	if existing, err := s.groups.GetGroupByName(ctx, name); err == nil && existing != nil {
		return nil, models.NewServiceError(models.ErrSchemaViolation, "group "+name+" already exists")
	}

	now := time.Now().UTC()
	group := &models.Group{
		GroupID:   common.NewGroupID(),
		Name:      name,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.groups.SaveGroup(ctx, group); err != nil {
		return nil, err
	}
	s.logger.Info().Str("group_id", group.GroupID).Str("name", name).Msg("Group created")
	return group, nil
}

// SetActive activates or deactivates a group. Reserved groups stay active.
func (s *Service) SetActive(ctx context.Context, auth *models.AuthContext, groupID string, active bool) (*models.Group, error) {
	if !auth.IsAdmin {
		return nil, models.NewServiceError(models.ErrAdminRequired, "group management requires admin")
	}
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.Reserved && !active {
		return nil, models.NewServiceError(models.ErrSchemaViolation, "reserved group "+group.Name+" cannot be deactivated")
	}
	group.Active = active
	group.UpdatedAt = time.Now().UTC()
	if err := s.groups.SaveGroup(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// List returns all groups. Admin only; group existence is not public.
func (s *Service) List(ctx context.Context, auth *models.AuthContext) ([]*models.Group, error) {
	if !auth.IsAdmin {
		return nil, models.NewServiceError(models.ErrAdminRequired, "group management requires admin")
	}
	return s.groups.ListGroups(ctx)
}

// IssueToken mints a bearer token for the named groups. Every group must
// exist and be active; the first becomes the write group.
func (s *Service) IssueToken(ctx context.Context, auth *models.AuthContext, groupNames []string, ttl time.Duration) (string, *models.TokenRecord, error) {
	if !auth.IsAdmin {
		return "", nil, models.NewServiceError(models.ErrAdminRequired, "token issuance requires admin")
	}
	if len(groupNames) == 0 {
		return "", nil, models.NewServiceError(models.ErrInvalidInput, "at least one group is required")
	}
	for _, name := range groupNames {
		group, err := s.groups.GetGroupByName(ctx, name)
		if err != nil {
			return "", nil, models.NewServiceError(models.ErrNotFound, "unknown group "+name)
		}
		if !group.Active {
			return "", nil, models.NewServiceError(models.ErrSchemaViolation, "group "+name+" is inactive")
		}
	}
	return s.auth.Issue(ctx, groupNames, ttl)
}

// RevokeToken marks a token revoked. Admin only.
func (s *Service) RevokeToken(ctx context.Context, auth *models.AuthContext, tokenID string) error {
	if !auth.IsAdmin {
		return models.NewServiceError(models.ErrAdminRequired, "token revocation requires admin")
	}
	return s.auth.Revoke(ctx, tokenID)
}
