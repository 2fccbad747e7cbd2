package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one structured protocol event. Every state transition the engine
// commits emits exactly one event; they are the canonical feed for off-chain
// indexers to reconstruct protocol state without polling reads.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// ConditionID is the affected condition, if applicable.
	ConditionID uint64 `json:"condition_id,omitempty"`

	// Principal is the acting or affected principal, if applicable.
	Principal string `json:"principal,omitempty"`

	// Amount is the monetary amount involved, if applicable.
	Amount uint64 `json:"amount,omitempty"`

	// Block is the block height the transition was committed at.
	Block uint64 `json:"block,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants, one per protocol state transition.
const (
	EventTypeConditionRegistered = "condition.registered"
	EventTypeConditionActivated  = "condition.activated"
	EventTypeConditionExecuted   = "condition.executed"
	EventTypeConditionCancelled  = "condition.cancelled"
	EventTypeExecutionChallenged = "execution.challenged"
	EventTypeChallengeResolved   = "challenge.resolved"
	EventTypeExecutorStaked      = "executor.staked"
	EventTypeExecutorUnstaked    = "executor.unstaked"
	EventTypeExecutorSlashed     = "executor.slashed"
	EventTypeStakeEscrowed       = "stake.escrowed"
	EventTypeStakeReleased       = "stake.released"
	EventTypeStakeForfeited      = "stake.forfeited"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishConditionRegistered publishes a condition registration event.
func (ep *EventPublisher) PublishConditionRegistered(id uint64, registrant, triggerType string, block uint64) error {
	return ep.Publish(Event{
		Type:        EventTypeConditionRegistered,
		Source:      "engine",
		ConditionID: id,
		Principal:   registrant,
		Block:       block,
		Message:     fmt.Sprintf("Condition %d registered by %s", id, registrant),
		Level:       EventLevelInfo,
		Data: map[string]interface{}{
			"trigger_type": triggerType,
		},
	})
}

// PublishConditionActivated publishes a condition activation event.
func (ep *EventPublisher) PublishConditionActivated(id uint64, registrant string, block uint64) error {
	return ep.Publish(Event{
		Type:        EventTypeConditionActivated,
		Source:      "engine",
		ConditionID: id,
		Principal:   registrant,
		Block:       block,
		Message:     fmt.Sprintf("Condition %d activated", id),
		Level:       EventLevelInfo,
	})
}

// PublishConditionExecuted publishes an execution event carrying the proof
// reference and the challenge deadline the execution opened.
func (ep *EventPublisher) PublishConditionExecuted(id uint64, executor, proofRef string, block, deadline uint64) error {
	return ep.Publish(Event{
		Type:        EventTypeConditionExecuted,
		Source:      "engine",
		ConditionID: id,
		Principal:   executor,
		Block:       block,
		Message:     fmt.Sprintf("Condition %d executed by %s at block %d", id, executor, block),
		Level:       EventLevelInfo,
		Data: map[string]interface{}{
			"proof_ref":          proofRef,
			"challenge_deadline": deadline,
		},
	})
}

// PublishConditionCancelled publishes a cancellation event.
func (ep *EventPublisher) PublishConditionCancelled(id uint64, caller string, block uint64) error {
	return ep.Publish(Event{
		Type:        EventTypeConditionCancelled,
		Source:      "engine",
		ConditionID: id,
		Principal:   caller,
		Block:       block,
		Message:     fmt.Sprintf("Condition %d cancelled by %s", id, caller),
		Level:       EventLevelInfo,
	})
}

// PublishExecutionChallenged publishes a challenge event.
func (ep *EventPublisher) PublishExecutionChallenged(id uint64, challenger string, block uint64) error {
	return ep.Publish(Event{
		Type:        EventTypeExecutionChallenged,
		Source:      "resolver",
		ConditionID: id,
		Principal:   challenger,
		Block:       block,
		Message:     fmt.Sprintf("Execution of condition %d challenged by %s", id, challenger),
		Level:       EventLevelWarning,
	})
}

// PublishChallengeResolved publishes an arbitration verdict.
func (ep *EventPublisher) PublishChallengeResolved(id uint64, arbiter string, valid bool, block uint64) error {
	level := EventLevelInfo
	if !valid {
		level = EventLevelWarning
	}
	return ep.Publish(Event{
		Type:        EventTypeChallengeResolved,
		Source:      "resolver",
		ConditionID: id,
		Principal:   arbiter,
		Block:       block,
		Message:     fmt.Sprintf("Challenge on condition %d resolved: valid=%t", id, valid),
		Level:       level,
		Data: map[string]interface{}{
			"valid": valid,
		},
	})
}

// PublishExecutorStaked publishes an executor deposit event.
func (ep *EventPublisher) PublishExecutorStaked(principal string, amount, balance uint64) error {
	return ep.Publish(Event{
		Type:      EventTypeExecutorStaked,
		Source:    "ledger",
		Principal: principal,
		Amount:    amount,
		Message:   fmt.Sprintf("Executor %s staked %d (balance %d)", principal, amount, balance),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"balance": balance,
		},
	})
}

// PublishExecutorUnstaked publishes a full-exit event.
func (ep *EventPublisher) PublishExecutorUnstaked(principal string, amount uint64) error {
	return ep.Publish(Event{
		Type:      EventTypeExecutorUnstaked,
		Source:    "ledger",
		Principal: principal,
		Amount:    amount,
		Message:   fmt.Sprintf("Executor %s unstaked %d", principal, amount),
		Level:     EventLevelInfo,
	})
}

// PublishExecutorSlashed publishes a slash event with the effective amount
// actually removed, which may be less than requested.
func (ep *EventPublisher) PublishExecutorSlashed(principal string, requested, effective uint64, reason string, conditionID uint64) error {
	return ep.Publish(Event{
		Type:        EventTypeExecutorSlashed,
		Source:      "ledger",
		ConditionID: conditionID,
		Principal:   principal,
		Amount:      effective,
		Message:     fmt.Sprintf("Executor %s slashed %d: %s", principal, effective, reason),
		Level:       EventLevelWarning,
		Data: map[string]interface{}{
			"requested": requested,
			"reason":    reason,
		},
	})
}

// PublishStakeEscrowed publishes a condition escrow event.
func (ep *EventPublisher) PublishStakeEscrowed(owner string, conditionID, amount uint64) error {
	return ep.Publish(Event{
		Type:        EventTypeStakeEscrowed,
		Source:      "ledger",
		ConditionID: conditionID,
		Principal:   owner,
		Amount:      amount,
		Message:     fmt.Sprintf("Stake of %d escrowed for condition %d", amount, conditionID),
		Level:       EventLevelInfo,
	})
}

// PublishStakeReleased publishes an escrow refund event.
func (ep *EventPublisher) PublishStakeReleased(owner string, conditionID, amount uint64) error {
	return ep.Publish(Event{
		Type:        EventTypeStakeReleased,
		Source:      "ledger",
		ConditionID: conditionID,
		Principal:   owner,
		Amount:      amount,
		Message:     fmt.Sprintf("Stake of %d released for condition %d", amount, conditionID),
		Level:       EventLevelInfo,
	})
}

// PublishStakeForfeited publishes an escrow forfeiture event.
func (ep *EventPublisher) PublishStakeForfeited(owner string, conditionID, amount uint64, reason string) error {
	return ep.Publish(Event{
		Type:        EventTypeStakeForfeited,
		Source:      "ledger",
		ConditionID: conditionID,
		Principal:   owner,
		Amount:      amount,
		Message:     fmt.Sprintf("Stake of %d forfeited for condition %d: %s", amount, conditionID, reason),
		Level:       EventLevelWarning,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// Subscribe adds a new event subscriber with an optional filter.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
			// Drain remaining events before shutting down.
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled || ep.cancel == nil {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel creates a filter that only allows events of a minimum level.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByCondition creates a filter that only allows events for one condition.
func FilterByCondition(id uint64) EventFilter {
	return func(event Event) bool {
		return event.ConditionID == id
	}
}

// FilterByPrincipal creates a filter that only allows events for one principal.
func FilterByPrincipal(principal string) EventFilter {
	return func(event Event) bool {
		return event.Principal == principal
	}
}
