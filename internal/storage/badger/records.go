package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

// GroupStorage manages permission groups.
type GroupStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewGroupStorage creates a new GroupStorage instance
func NewGroupStorage(db *BadgerDB, logger arbor.ILogger) interfaces.GroupStorage {
	return &GroupStorage{db: db, logger: logger}
}

// SaveGroup upserts a group record.
func (s *GroupStorage) SaveGroup(ctx context.Context, group *models.Group) error {
	group.UpdatedAt = time.Now().UTC()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = group.UpdatedAt
	}
	if err := s.db.Store().Upsert(group.GroupID, group); err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	return nil
}

// GetGroup returns a group by id.
func (s *GroupStorage) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	var group models.Group
	if err := s.db.Store().Get(groupID, &group); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.NewServiceError(models.ErrNotFound, "group not found")
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &group, nil
}

// GetGroupByName returns a group by its unique name.
func (s *GroupStorage) GetGroupByName(ctx context.Context, name string) (*models.Group, error) {
	var group models.Group
	err := s.db.Store().FindOne(&group, badgerhold.Where("Name").Eq(name))
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.NewServiceError(models.ErrNotFound, "group not found")
		}
		return nil, fmt.Errorf("failed to get group by name: %w", err)
	}
	return &group, nil
}

// ListGroups returns all groups.
func (s *GroupStorage) ListGroups(ctx context.Context) ([]*models.Group, error) {
	var groups []models.Group
	if err := s.db.Store().Find(&groups, nil); err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	out := make([]*models.Group, len(groups))
	for i := range groups {
		out[i] = &groups[i]
	}
	return out, nil
}

// TokenStorage manages token issuance records.
type TokenStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTokenStorage creates a new TokenStorage instance
func NewTokenStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TokenStorage {
	return &TokenStorage{db: db, logger: logger}
}

// SaveToken persists a token record.
func (s *TokenStorage) SaveToken(ctx context.Context, token *models.TokenRecord) error {
	if err := s.db.Store().Upsert(token.TokenID, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// GetToken returns the issuance record for a token id.
func (s *TokenStorage) GetToken(ctx context.Context, tokenID string) (*models.TokenRecord, error) {
	var token models.TokenRecord
	if err := s.db.Store().Get(tokenID, &token); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.NewServiceError(models.ErrNotFound, "token not found")
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &token, nil
}

// RevokeToken marks the record revoked. Revoking an unknown token is an
// error; revoking twice is not.
func (s *TokenStorage) RevokeToken(ctx context.Context, tokenID string) error {
	token, err := s.GetToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if token.Revoked {
		return nil
	}
	token.Revoked = true
	return s.SaveToken(ctx, token)
}

// SourceStorage manages global source attribution records.
type SourceStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSourceStorage creates a new SourceStorage instance
func NewSourceStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SourceStorage {
	return &SourceStorage{db: db, logger: logger}
}

// SaveSource upserts a source.
func (s *SourceStorage) SaveSource(ctx context.Context, source *models.Source) error {
	source.UpdatedAt = time.Now().UTC()
	if source.CreatedAt.IsZero() {
		source.CreatedAt = source.UpdatedAt
	}
	if err := s.db.Store().Upsert(source.SourceID, source); err != nil {
		return fmt.Errorf("failed to save source: %w", err)
	}
	return nil
}

// GetSource returns a source by id.
func (s *SourceStorage) GetSource(ctx context.Context, sourceID string) (*models.Source, error) {
	var source models.Source
	if err := s.db.Store().Get(sourceID, &source); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.NewServiceError(models.ErrSourceNotFound, "source not found")
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return &source, nil
}

// ListSources returns all sources.
func (s *SourceStorage) ListSources(ctx context.Context) ([]*models.Source, error) {
	var sources []models.Source
	if err := s.db.Store().Find(&sources, nil); err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	out := make([]*models.Source, len(sources))
	for i := range sources {
		out[i] = &sources[i]
	}
	return out, nil
}

// DeleteSource removes a source record.
func (s *SourceStorage) DeleteSource(ctx context.Context, sourceID string) error {
	err := s.db.Store().Delete(sourceID, &models.Source{})
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return models.NewServiceError(models.ErrSourceNotFound, "source not found")
		}
		return fmt.Errorf("failed to delete source: %w", err)
	}
	return nil
}

// ClientStorage manages client books. Every read carries the caller's
// permitted groups as a store predicate.
type ClientStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewClientStorage creates a new ClientStorage instance
func NewClientStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ClientStorage {
	return &ClientStorage{db: db, logger: logger}
}

// SaveClient upserts a client record.
func (s *ClientStorage) SaveClient(ctx context.Context, client *models.Client) error {
	client.UpdatedAt = time.Now().UTC()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = client.UpdatedAt
	}
	if err := s.db.Store().Upsert(client.ClientID, client); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

// GetClient returns a client, restricted to the permitted groups.
func (s *ClientStorage) GetClient(ctx context.Context, clientID string, groups []string) (*models.Client, error) {
	var client models.Client
	err := s.db.Store().FindOne(&client,
		badgerhold.Where(badgerhold.Key).Eq(clientID).And("GroupID").In(sliceToIface(groups)...))
	if err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.NewServiceError(models.ErrNotFound, "client not found")
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &client, nil
}

// ListClients returns all clients in the permitted groups.
func (s *ClientStorage) ListClients(ctx context.Context, groups []string) ([]*models.Client, error) {
	var clients []models.Client
	err := s.db.Store().Find(&clients, badgerhold.Where("GroupID").In(sliceToIface(groups)...))
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	out := make([]*models.Client, len(clients))
	for i := range clients {
		out[i] = &clients[i]
	}
	return out, nil
}

// DeleteClient removes a client, restricted to the permitted groups.
func (s *ClientStorage) DeleteClient(ctx context.Context, clientID string, groups []string) error {
	// Group containment is checked by the read before the keyed delete.
	if _, err := s.GetClient(ctx, clientID, groups); err != nil {
		return err
	}
	if err := s.db.Store().Delete(clientID, &models.Client{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return nil
}
