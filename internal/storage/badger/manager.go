package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
	filestore "github.com/finwire/finwire/internal/storage/file"
)

// Manager aggregates every store behind one lifecycle: a single badger
// database for the graph, vector, and record stores, plus the canonical
// file store.
type Manager struct {
	db        *BadgerDB
	canonical interfaces.CanonicalStore
	graph     interfaces.GraphStorage
	vector    interfaces.VectorStorage
	groups    interfaces.GroupStorage
	tokens    interfaces.TokenStorage
	sources   interfaces.SourceStorage
	clients   interfaces.ClientStorage
	logger    arbor.ILogger
}

// NewManager opens the stores and seeds reserved records.
func NewManager(config *common.Config, logger arbor.ILogger) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	canonical, err := filestore.NewDocumentStore(config.Storage.Documents.Dir, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}

	m := &Manager{
		db:        db,
		canonical: canonical,
		graph:     NewGraphStorage(db, logger),
		vector:    NewVectorStorage(db, logger),
		groups:    NewGroupStorage(db, logger),
		tokens:    NewTokenStorage(db, logger),
		sources:   NewSourceStorage(db, logger),
		clients:   NewClientStorage(db, logger),
		logger:    logger,
	}

	ctx := context.Background()
	if err := m.graph.Init(ctx); err != nil {
		m.Close()
		return nil, err
	}
	if err := m.seedReservedGroups(ctx); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// seedReservedGroups ensures admin and public exist from first startup.
func (m *Manager) seedReservedGroups(ctx context.Context) error {
	for _, name := range []string{models.GroupAdmin, models.GroupPublic} {
		if _, err := m.groups.GetGroup(ctx, name); err == nil {
			continue
		}
		group := &models.Group{
			GroupID:   name,
			Name:      name,
			Reserved:  true,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}
		if err := m.groups.SaveGroup(ctx, group); err != nil {
			return fmt.Errorf("failed to seed reserved group %s: %w", name, err)
		}
		m.logger.Debug().Str("group", name).Msg("Seeded reserved group")
	}
	return nil
}

func (m *Manager) Canonical() interfaces.CanonicalStore { return m.canonical }
func (m *Manager) Graph() interfaces.GraphStorage       { return m.graph }
func (m *Manager) Vector() interfaces.VectorStorage     { return m.vector }
func (m *Manager) Groups() interfaces.GroupStorage      { return m.groups }
func (m *Manager) Tokens() interfaces.TokenStorage      { return m.tokens }
func (m *Manager) Sources() interfaces.SourceStorage    { return m.sources }
func (m *Manager) Clients() interfaces.ClientStorage    { return m.clients }

// Close closes the badger connection. The file store holds no handles.
func (m *Manager) Close() error {
	return m.db.Close()
}
