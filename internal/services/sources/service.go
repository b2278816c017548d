package sources

import (
	"context"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

// Service manages the global source registry. Sources are visible to every
// caller; mutation is admin-only.
type Service struct {
	storage interfaces.SourceStorage
	logger  arbor.ILogger
}

func NewService(storage interfaces.SourceStorage, logger arbor.ILogger) *Service {
	return &Service{storage: storage, logger: logger}
}

// CreateRequest is the create_source payload.
type CreateRequest struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Region     string   `json:"region,omitempty"`
	Languages  []string `json:"languages,omitempty"`
	TrustLevel string   `json:"trust_level,omitempty"`
}

// Create registers a source. Admin only.
func (s *Service) Create(ctx context.Context, auth *models.AuthContext, req *CreateRequest) (*models.Source, error) {
	if !auth.IsAdmin {
		return nil, models.NewServiceError(models.ErrAdminRequired, "source management requires admin")
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Type) == "" {
		return nil, models.NewServiceError(models.ErrInvalidInput, "source name and type are required")
	}
	trust := req.TrustLevel
	if trust == "" {
		trust = models.TrustStandard
	}
	if !models.ValidTrustLevel(trust) {
		return nil, models.NewServiceError(models.ErrInvalidInput, "unknown trust level "+trust)
	}

	now := time.Now().UTC()
	source := &models.Source{
		SourceID:   common.NewSourceID(),
		Name:       req.Name,
		Type:       req.Type,
		Region:     req.Region,
		Languages:  req.Languages,
		TrustLevel: trust,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.storage.SaveSource(ctx, source); err != nil {
		return nil, err
	}
	s.logger.Info().Str("source_id", source.SourceID).Str("name", source.Name).Msg("Source created")
	return source, nil
}

// UpdateRequest carries mutable source fields; nil means unchanged.
type UpdateRequest struct {
	Name       *string   `json:"name,omitempty"`
	Type       *string   `json:"type,omitempty"`
	Region     *string   `json:"region,omitempty"`
	Languages  *[]string `json:"languages,omitempty"`
	TrustLevel *string   `json:"trust_level,omitempty"`
	Active     *bool     `json:"active,omitempty"`
}

// Update mutates a source. Admin only.
func (s *Service) Update(ctx context.Context, auth *models.AuthContext, sourceID string, req *UpdateRequest) (*models.Source, error) {
	if !auth.IsAdmin {
		return nil, models.NewServiceError(models.ErrAdminRequired, "source management requires admin")
	}
	source, err := s.storage.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		source.Name = *req.Name
	}
	if req.Type != nil {
		source.Type = *req.Type
	}
	if req.Region != nil {
		source.Region = *req.Region
	}
	if req.Languages != nil {
		source.Languages = *req.Languages
	}
	if req.TrustLevel != nil {
		if !models.ValidTrustLevel(*req.TrustLevel) {
			return nil, models.NewServiceError(models.ErrInvalidInput, "unknown trust level "+*req.TrustLevel)
		}
		source.TrustLevel = *req.TrustLevel
	}
	if req.Active != nil {
		source.Active = *req.Active
	}
	source.UpdatedAt = time.Now().UTC()

	if err := s.storage.SaveSource(ctx, source); err != nil {
		return nil, err
	}
	return source, nil
}

// Delete removes a source. Admin only. Documents already attributed to the
// source keep their source_id; ingestion of new documents against it fails.
func (s *Service) Delete(ctx context.Context, auth *models.AuthContext, sourceID string) error {
	if !auth.IsAdmin {
		return models.NewServiceError(models.ErrAdminRequired, "source management requires admin")
	}
	return s.storage.DeleteSource(ctx, sourceID)
}

// Get returns one source. Sources are global; no group filter applies.
func (s *Service) Get(ctx context.Context, sourceID string) (*models.Source, error) {
	return s.storage.GetSource(ctx, sourceID)
}

// List returns all sources.
func (s *Service) List(ctx context.Context) ([]*models.Source, error) {
	return s.storage.ListSources(ctx)
}
