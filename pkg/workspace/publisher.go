package workspace

import (
	"context"
	"log/slog"

	"github.com/dukex/dataflow/pkg/engine"
	"github.com/dukex/dataflow/pkg/eventbus"
	"github.com/dukex/dataflow/pkg/events"
	"github.com/dukex/dataflow/pkg/models"
	"github.com/dukex/dataflow/pkg/store"
)

// publisher forwards the results of one store to the event bus.
type publisher struct {
	projectID string
	store     *store.Store
	bus       eventbus.EventPublisher
	logger    *slog.Logger
}

func (p *publisher) nodeChanged(nodeID string, result *models.ExecutionResult) {
	if result == nil {
		return
	}

	var moduleID string
	if node, err := p.store.Node(nodeID); err == nil {
		moduleID = node.ModuleID
	}

	event := events.NodeResultEvent(p.projectID, moduleID, result)
	if event == nil {
		return
	}

	p.publish(event)
}

func (p *publisher) RunStarted(projectID string, plan *engine.Plan) {
	p.publish(&events.ProjectRunStarted{
		BaseEvent: events.NewBaseEvent(events.ProjectRunStartedEvent, projectID),
		Scope:     string(plan.Scope),
		Target:    plan.Target,
		Waves:     plan.Waves,
	})
}

func (p *publisher) RunFinished(projectID string, plan *engine.Plan, results map[string]*models.ExecutionResult, err error) {
	event := &events.ProjectRunCompleted{
		BaseEvent: events.NewBaseEvent(events.ProjectRunCompletedEvent, projectID),
		Scope:     string(plan.Scope),
		Target:    plan.Target,
	}

	for _, r := range results {
		switch r.Status {
		case models.NodeStatusSuccess:
			event.Succeeded++
		case models.NodeStatusError:
			event.Failed++
		}
	}

	if err != nil {
		event.Error = err.Error()
	}

	p.publish(event)
}

func (p *publisher) publish(event eventbus.Event) {
	ctx := context.Background()

	err := p.bus.Publish(ctx, p.projectID, event)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish event",
			"project_id", p.projectID, "event_type", event.GetType(), "error", err)
	}
}
