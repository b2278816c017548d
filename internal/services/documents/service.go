package documents

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

// Service reads canonical documents and performs the admin delete that
// removes a document from all three stores.
type Service struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

func NewService(storage interfaces.StorageManager, logger arbor.ILogger) *Service {
	return &Service{storage: storage, logger: logger}
}

// Get returns a canonical document visible to the caller. The optional
// date hint narrows the partition scan.
func (s *Service) Get(ctx context.Context, auth *models.AuthContext, documentID string, dateHint *time.Time) (*models.Document, error) {
	return s.storage.Canonical().Get(ctx, documentID, dateHint, auth.PermittedGroups)
}

// Delete removes a document from the canonical store, the graph, and the
// vector index. Admin only. The graph delete also releases the content
// hash claim, so the same story can be re-ingested afterwards.
func (s *Service) Delete(ctx context.Context, auth *models.AuthContext, documentID string) error {
	if !auth.IsAdmin {
		return models.NewServiceError(models.ErrAdminRequired, "document deletion requires admin")
	}
	node, err := s.storage.Graph().GetDocumentNode(ctx, documentID, auth.PermittedGroups)
	if err != nil {
		return err
	}

	if err := s.storage.Vector().DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if err := s.storage.Graph().DeleteDocument(ctx, documentID, node.GroupID); err != nil {
		return err
	}
	if err := s.storage.Canonical().Delete(ctx, documentID, node.GroupID); err != nil {
		return err
	}

	s.logger.Info().
		Str("document_id", documentID).
		Str("group_id", node.GroupID).
		Msg("Document deleted")
	return nil
}
