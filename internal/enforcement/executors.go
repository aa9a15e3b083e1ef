package enforcement

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/peershare/warden/internal/domain"
)

// ExecutorSet holds one executor per action variant. The set is closed on
// purpose: adding an action type means adding a field here, so a missing
// handler is a compile-time hole rather than a runtime surprise.
type ExecutorSet struct {
	BlockBooking      domain.ActionExecutor
	RequireInsurance  domain.ActionExecutor
	RequireInspection domain.ActionExecutor
	SendNotification  domain.ActionExecutor
	Escalate          domain.ActionExecutor
}

// ForType returns the executor for an action type, or nil for an unknown one.
func (s ExecutorSet) ForType(t domain.ActionType) domain.ActionExecutor {
	switch t {
	case domain.ActionBlockBooking:
		return s.BlockBooking
	case domain.ActionRequireInsurance:
		return s.RequireInsurance
	case domain.ActionRequireInspection:
		return s.RequireInspection
	case domain.ActionSendNotification:
		return s.SendNotification
	case domain.ActionEscalate:
		return s.Escalate
	}
	return nil
}

// NewBusExecutors wires the default executor set, which hands every action
// to downstream collaborators over the event bus. Blocking gets its own
// topic so the booking service can subscribe to just that.
func NewBusExecutors(bus domain.EventBus) ExecutorSet {
	return ExecutorSet{
		BlockBooking:      &busExecutor{bus: bus, actionType: domain.ActionBlockBooking, topic: domain.TopicBookingBlocked},
		RequireInsurance:  &busExecutor{bus: bus, actionType: domain.ActionRequireInsurance, topic: domain.TopicActionDispatched},
		RequireInspection: &busExecutor{bus: bus, actionType: domain.ActionRequireInspection, topic: domain.TopicActionDispatched},
		SendNotification:  &busExecutor{bus: bus, actionType: domain.ActionSendNotification, topic: domain.TopicActionDispatched},
		Escalate:          &busExecutor{bus: bus, actionType: domain.ActionEscalate, topic: domain.TopicActionDispatched},
	}
}

// busExecutor publishes the action for an external collaborator to act on.
type busExecutor struct {
	bus        domain.EventBus
	actionType domain.ActionType
	topic      string
}

func (e *busExecutor) Type() domain.ActionType { return e.actionType }

func (e *busExecutor) Execute(ctx context.Context, action *domain.EnforcementAction, check *domain.ComplianceCheck) error {
	if e.bus == nil {
		return fmt.Errorf("%w: event bus is not configured", domain.ErrDependency)
	}

	payload, err := json.Marshal(map[string]any{
		"action":           action,
		"bookingId":        action.BookingID,
		"complianceStatus": check.Status,
		"missing":          check.MissingRequirements,
	})
	if err != nil {
		return err
	}

	if err := e.bus.Publish(ctx, e.topic, payload); err != nil {
		return fmt.Errorf("%w: publish %s: %v", domain.ErrDependency, e.topic, err)
	}
	return nil
}
