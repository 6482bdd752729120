package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fieldline/automation-engine/internal/messaging"
	"github.com/fieldline/automation-engine/internal/models"
	"github.com/google/uuid"
)

// MessageRepository is an in-memory message event store for tests,
// idempotent on external_id like the SQL implementation.
type MessageRepository struct {
	mu         sync.Mutex
	byExternal map[string]*models.MessageEvent
}

// NewMessageRepository creates a new in-memory message repository
func NewMessageRepository() *MessageRepository {
	return &MessageRepository{
		byExternal: make(map[string]*models.MessageEvent),
	}
}

// InsertMessageEvent inserts a message event unless its external id exists
func (r *MessageRepository) InsertMessageEvent(ctx context.Context, event *models.MessageEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byExternal[event.ExternalID]; exists {
		return false, nil
	}

	copied := *event
	r.byExternal[event.ExternalID] = &copied
	return true, nil
}

// UpdateDeliveryStatus updates the status of a stored message event
func (r *MessageRepository) UpdateDeliveryStatus(ctx context.Context, externalID, status string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.byExternal[externalID]
	if !ok {
		return false, nil
	}
	event.Status = status
	return true, nil
}

// GetByExternalID retrieves a stored message event
func (r *MessageRepository) GetByExternalID(externalID string) (*models.MessageEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.byExternal[externalID]
	if !ok {
		return nil, false
	}
	copied := *event
	return &copied, true
}

// Count returns the number of stored message events
func (r *MessageRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byExternal)
}

// ConversationRepository is an in-memory conversation store for tests.
type ConversationRepository struct {
	mu        sync.Mutex
	byAddress map[string]*models.Conversation
	byID      map[uuid.UUID]*models.Conversation
}

// NewConversationRepository creates a new in-memory conversation repository
func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		byAddress: make(map[string]*models.Conversation),
		byID:      make(map[uuid.UUID]*models.Conversation),
	}
}

// Add seeds a conversation into the store
func (r *ConversationRepository) Add(conv *models.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *conv
	r.byAddress[conv.CounterpartyAddress] = &copied
	r.byID[conv.ID] = &copied
}

// GetByAddress finds the conversation for an address, never creating one
func (r *ConversationRepository) GetByAddress(ctx context.Context, address string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.byAddress[address]
	if !ok {
		return nil, messaging.ErrConversationNotFound
	}

	copied := *conv
	return &copied, nil
}

// Count returns the number of stored conversations
func (r *ConversationRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// RecordInbound advances a conversation for a new inbound message
func (r *ConversationRepository) RecordInbound(ctx context.Context, conversationID uuid.UUID, preview string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.byID[conversationID]
	if !ok {
		return fmt.Errorf("conversation not found: %s", conversationID)
	}

	conv.LastMessageAt = &at
	conv.LastMessagePreview = preview
	conv.UnreadCount++
	return nil
}

// SetStopped flips a conversation's stopped flag
func (r *ConversationRepository) SetStopped(ctx context.Context, conversationID uuid.UUID, stopped bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.byID[conversationID]
	if !ok {
		return fmt.Errorf("conversation not found: %s", conversationID)
	}
	conv.Stopped = stopped
	return nil
}

// Get retrieves a conversation by ID
func (r *ConversationRepository) Get(id uuid.UUID) (*models.Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	copied := *conv
	return &copied, true
}

// OptOutRepository is an in-memory opt-out store for tests.
type OptOutRepository struct {
	mu      sync.Mutex
	optOuts []models.OptOut
}

// NewOptOutRepository creates a new in-memory opt-out repository
func NewOptOutRepository() *OptOutRepository {
	return &OptOutRepository{}
}

// CreateOptOut stores an opt-out record
func (r *OptOutRepository) CreateOptOut(ctx context.Context, optOut *models.OptOut) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.optOuts = append(r.optOuts, *optOut)
	return nil
}

// All returns every stored opt-out
func (r *OptOutRepository) All() []models.OptOut {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.OptOut(nil), r.optOuts...)
}

// DedupStore is an in-memory SetNX store for tests. failErr simulates an
// unavailable cache.
type DedupStore struct {
	mu      sync.Mutex
	keys    map[string]struct{}
	failErr error
}

// NewDedupStore creates a new in-memory dedup store
func NewDedupStore() *DedupStore {
	return &DedupStore{keys: make(map[string]struct{})}
}

// Fail makes every subsequent SetNX return the given error
func (s *DedupStore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// SetNX records a key, reporting whether it was new
func (s *DedupStore) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return false, s.failErr
	}

	if _, exists := s.keys[key]; exists {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}
