package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/finwire/finwire/internal/common"
	"github.com/finwire/finwire/internal/interfaces"
	"github.com/finwire/finwire/internal/models"
)

// Orphan is one consistency finding: a canonical document whose index
// projections are missing.
type Orphan struct {
	DocumentID string `json:"document_id"`
	GroupID    string `json:"group_id"`
	Kind       string `json:"kind"` // missing_graph_node, missing_chunks
}

// Report summarizes one reconciliation sweep. The sweep is report-only:
// repairs stay a deliberate operator action.
type Report struct {
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Groups    int       `json:"groups"`
	Documents int       `json:"documents"`
	Orphans   []Orphan  `json:"orphans,omitempty"`
}

// Reconciler sweeps the canonical store against the graph and vector
// projections on a cron schedule.
type Reconciler struct {
	storage  interfaces.StorageManager
	events   interfaces.EventPublisher
	lookback time.Duration
	schedule string
	cron     *cron.Cron
	logger   arbor.ILogger
}

// NewReconciler creates the reconciler.
func NewReconciler(config *common.ReconcileConfig, storage interfaces.StorageManager, events interfaces.EventPublisher, logger arbor.ILogger) (*Reconciler, error) {
	lookback, err := time.ParseDuration(config.Lookback)
	if err != nil {
		return nil, fmt.Errorf("invalid reconcile lookback %q: %w", config.Lookback, err)
	}
	return &Reconciler{
		storage:  storage,
		events:   events,
		lookback: lookback,
		schedule: config.Schedule,
		logger:   logger,
	}, nil
}

// Start schedules periodic sweeps. No-op when already started.
func (r *Reconciler) Start() error {
	if r.cron != nil {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(r.schedule, func() {
		if _, err := r.Sweep(context.Background()); err != nil {
			r.logger.Error().Err(err).Msg("Reconciliation sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", r.schedule, err)
	}
	r.cron = c
	c.Start()
	r.logger.Info().Str("schedule", r.schedule).Msg("Reconciler started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Reconciler) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
		r.cron = nil
	}
}

// Sweep walks every group's canonical documents over the lookback window
// and flags index orphans.
func (r *Reconciler) Sweep(ctx context.Context) (*Report, error) {
	started := time.Now().UTC()
	report := &Report{StartedAt: started}

	groups, err := r.storage.Groups().ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	report.Groups = len(groups)

	from := started.Add(-r.lookback)
	for _, group := range groups {
		if err := r.sweepGroup(ctx, group.GroupID, from, started, report); err != nil {
			return nil, err
		}
	}

	report.Duration = time.Since(started).String()
	r.logger.Info().
		Int("documents", report.Documents).
		Int("orphans", len(report.Orphans)).
		Str("duration", report.Duration).
		Msg("Reconciliation sweep finished")

	if r.events != nil {
		r.events.Publish(interfaces.Event{
			Type: "reconcile.done",
			Data: map[string]any{
				"documents": report.Documents,
				"orphans":   len(report.Orphans),
			},
		})
	}
	return report, nil
}

func (r *Reconciler) sweepGroup(ctx context.Context, groupID string, from, to time.Time, report *Report) error {
	iter, err := r.storage.Canonical().Iter(ctx, groupID, from, to)
	if err != nil {
		return err
	}
	defer iter.Close()

	for {
		doc, err := iter.Next()
		if err != nil {
			return err
		}
		if doc == nil {
			return nil
		}
		report.Documents++

		node, err := r.storage.Graph().GetDocumentNode(ctx, doc.DocumentID, []string{groupID})
		if err != nil || node == nil {
			if err != nil && models.CodeOf(err) != models.ErrNotFound {
				return err
			}
			report.Orphans = append(report.Orphans, Orphan{
				DocumentID: doc.DocumentID,
				GroupID:    groupID,
				Kind:       "missing_graph_node",
			})
			r.logger.Warn().Str("document_id", doc.DocumentID).Str("group_id", groupID).Msg("Canonical document has no graph node")
			continue
		}

		chunks, err := r.storage.Vector().ChunkCount(ctx, doc.DocumentID)
		if err != nil {
			return err
		}
		if chunks == 0 {
			report.Orphans = append(report.Orphans, Orphan{
				DocumentID: doc.DocumentID,
				GroupID:    groupID,
				Kind:       "missing_chunks",
			})
			r.logger.Warn().Str("document_id", doc.DocumentID).Str("group_id", groupID).Msg("Graph node has no vector chunks")
		}
	}
}
