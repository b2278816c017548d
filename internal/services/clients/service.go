package clients

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

// Service is the client book service: CRUD for clients, portfolios, and
// watchlists, mandate enrichment, and the profile completeness report.
// Every read and delete is restricted to the caller's permitted groups
// inside the store query.
type Service struct {
	storage  interfaces.StorageManager
	enricher *Enricher
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewService creates the client service. enricher may be nil in LLM-less
// deployments; mandate enrichment then fails with UPSTREAM_UNAVAILABLE.
func NewService(storage interfaces.StorageManager, enricher *Enricher, logger arbor.ILogger) *Service {
	return &Service{
		storage:  storage,
		enricher: enricher,
		validate: validator.New(),
		logger:   logger,
	}
}

// CreateRequest is the validated create_client payload.
type CreateRequest struct {
	Name            string               `json:"name" validate:"required,min=1,max=200"`
	ClientType      string               `json:"client_type,omitempty" validate:"omitempty,max=50"`
	GroupID         string               `json:"group_id" validate:"required"`
	AlertFrequency  string               `json:"alert_frequency,omitempty" validate:"omitempty,oneof=realtime daily weekly"`
	ImpactThreshold int                  `json:"impact_threshold,omitempty" validate:"omitempty,min=0,max=100"`
	Portfolio       *models.Portfolio    `json:"portfolio,omitempty"`
	Watchlist       *models.Watchlist    `json:"watchlist,omitempty"`
	Profile         models.ClientProfile `json:"profile,omitempty"`
}

// Create registers a client in the caller's write group.
func (s *Service) Create(ctx context.Context, auth *models.AuthContext, req *CreateRequest) (*models.Client, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, models.WrapServiceError(models.ErrInvalidInput, "invalid client payload", err)
	}
	if !auth.CanWrite(req.GroupID) && !auth.IsAdmin {
		return nil, models.NewServiceError(models.ErrAccessDenied, "cannot create clients in group "+req.GroupID)
	}
	if len(req.Profile.MandateText) > models.MaxMandateChars {
		return nil, models.NewServiceError(models.ErrSchemaViolation, "mandate text exceeds the character limit")
	}

	now := time.Now().UTC()
	client := &models.Client{
		ClientID:        common.NewClientID(),
		Name:            req.Name,
		ClientType:      req.ClientType,
		GroupID:         req.GroupID,
		AlertFrequency:  req.AlertFrequency,
		ImpactThreshold: req.ImpactThreshold,
		Status:          "active",
		Profile:         req.Profile,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Portfolio != nil {
		client.Portfolio = *req.Portfolio
		client.Portfolio.UpdatedAt = now
	}
	if req.Watchlist != nil {
		client.Watchlist = *req.Watchlist
		client.Watchlist.UpdatedAt = now
	}

	if err := s.storage.Clients().SaveClient(ctx, client); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("client_id", client.ClientID).
		Str("group_id", client.GroupID).
		Msg("Client created")

	if s.enricher != nil && client.Profile.MandateText != "" {
		if err := s.enricher.EnrichMandate(ctx, client); err != nil {
			// Enrichment is retriable via enrich_client; creation stands.
			s.logger.Warn().Err(err).Str("client_id", client.ClientID).Msg("Mandate enrichment deferred")
		} else if err := s.storage.Clients().SaveClient(ctx, client); err != nil {
			return nil, err
		}
	}
	return client, nil
}

// Get returns a client visible to the caller.
func (s *Service) Get(ctx context.Context, auth *models.AuthContext, clientID string) (*models.Client, error) {
	return s.storage.Clients().GetClient(ctx, clientID, auth.PermittedGroups)
}

// List returns every client in the caller's permitted groups.
func (s *Service) List(ctx context.Context, auth *models.AuthContext) ([]*models.Client, error) {
	return s.storage.Clients().ListClients(ctx, auth.PermittedGroups)
}

// UpdateRequest carries the mutable client fields; nil means unchanged.
type UpdateRequest struct {
	Name            *string               `json:"name,omitempty"`
	ClientType      *string               `json:"client_type,omitempty"`
	AlertFrequency  *string               `json:"alert_frequency,omitempty"`
	ImpactThreshold *int                  `json:"impact_threshold,omitempty"`
	Status          *string               `json:"status,omitempty"`
	Profile         *models.ClientProfile `json:"profile,omitempty"`
}

// Update mutates a client the caller can write. A mandate text change
// triggers re-enrichment; the text hash keeps it idempotent otherwise.
func (s *Service) Update(ctx context.Context, auth *models.AuthContext, clientID string, req *UpdateRequest) (*models.Client, error) {
	client, err := s.writableClient(ctx, auth, clientID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		client.Name = *req.Name
	}
	if req.ClientType != nil {
		client.ClientType = *req.ClientType
	}
	if req.AlertFrequency != nil {
		client.AlertFrequency = *req.AlertFrequency
	}
	if req.ImpactThreshold != nil {
		client.ImpactThreshold = *req.ImpactThreshold
	}
	if req.Status != nil {
		client.Status = *req.Status
	}
	if req.Profile != nil {
		if len(req.Profile.MandateText) > models.MaxMandateChars {
			return nil, models.NewServiceError(models.ErrSchemaViolation, "mandate text exceeds the character limit")
		}
		// Enrichment artifacts are recomputed, never supplied by callers.
		profile := *req.Profile
		profile.MandateThemes = client.Profile.MandateThemes
		profile.MandateEmbedding = client.Profile.MandateEmbedding
		profile.MandateTextHash = client.Profile.MandateTextHash
		profile.EnrichedAt = client.Profile.EnrichedAt
		client.Profile = profile
	}
	client.UpdatedAt = time.Now().UTC()

	if s.enricher != nil && client.Profile.MandateText != "" {
		if err := s.enricher.EnrichMandate(ctx, client); err != nil {
			s.logger.Warn().Err(err).Str("client_id", clientID).Msg("Mandate enrichment deferred")
		}
	}
	if err := s.storage.Clients().SaveClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// SetPortfolio replaces the client's holdings.
func (s *Service) SetPortfolio(ctx context.Context, auth *models.AuthContext, clientID string, portfolio *models.Portfolio) (*models.Client, error) {
	client, err := s.writableClient(ctx, auth, clientID)
	if err != nil {
		return nil, err
	}
	for _, h := range portfolio.Holdings {
		if h.Ticker == "" || h.Weight < 0 || h.Weight > 1 {
			return nil, models.NewServiceError(models.ErrInvalidInput, "holdings need a ticker and a weight in [0,1]")
		}
	}
	now := time.Now().UTC()
	client.Portfolio = *portfolio
	client.Portfolio.UpdatedAt = now
	client.UpdatedAt = now
	if err := s.storage.Clients().SaveClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// SetWatchlist replaces the client's watchlist.
func (s *Service) SetWatchlist(ctx context.Context, auth *models.AuthContext, clientID string, watchlist *models.Watchlist) (*models.Client, error) {
	client, err := s.writableClient(ctx, auth, clientID)
	if err != nil {
		return nil, err
	}
	for _, item := range watchlist.Items {
		if item.Ticker == "" {
			return nil, models.NewServiceError(models.ErrInvalidInput, "watch items need a ticker")
		}
	}
	now := time.Now().UTC()
	client.Watchlist = *watchlist
	client.Watchlist.UpdatedAt = now
	client.UpdatedAt = now
	if err := s.storage.Clients().SaveClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// Delete removes a client the caller can write.
func (s *Service) Delete(ctx context.Context, auth *models.AuthContext, clientID string) error {
	if _, err := s.writableClient(ctx, auth, clientID); err != nil {
		return err
	}
	return s.storage.Clients().DeleteClient(ctx, clientID, auth.PermittedGroups)
}

// Enrich re-runs mandate enrichment on demand. A no-op when the mandate
// text has not changed since the last run.
func (s *Service) Enrich(ctx context.Context, auth *models.AuthContext, clientID string) (*models.Client, error) {
	client, err := s.writableClient(ctx, auth, clientID)
	if err != nil {
		return nil, err
	}
	if s.enricher == nil {
		return nil, models.NewServiceError(models.ErrUpstreamUnavailable, "mandate enrichment is not configured")
	}
	if err := s.enricher.EnrichMandate(ctx, client); err != nil {
		return nil, err
	}
	if err := s.storage.Clients().SaveClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// Completeness returns the profile completeness report.
func (s *Service) Completeness(ctx context.Context, auth *models.AuthContext, clientID string) (*CompletenessReport, error) {
	client, err := s.storage.Clients().GetClient(ctx, clientID, auth.PermittedGroups)
	if err != nil {
		return nil, err
	}
	report := Completeness(client)
	return &report, nil
}

// writableClient fetches a client and checks write permission on its group.
func (s *Service) writableClient(ctx context.Context, auth *models.AuthContext, clientID string) (*models.Client, error) {
	client, err := s.storage.Clients().GetClient(ctx, clientID, auth.PermittedGroups)
	if err != nil {
		return nil, err
	}
	if !auth.CanWrite(client.GroupID) && !auth.IsAdmin {
		return nil, models.NewServiceError(models.ErrAccessDenied, "cannot modify clients in group "+client.GroupID)
	}
	return client, nil
}
