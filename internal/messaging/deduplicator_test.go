package messaging_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fieldline/automation-engine/internal/messaging"
	"github.com/fieldline/automation-engine/internal/mocks"
	"github.com/fieldline/automation-engine/internal/models"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dedupFixture struct {
	messageRepo      *mocks.MessageRepository
	conversationRepo *mocks.ConversationRepository
	optOutRepo       *mocks.OptOutRepository
	store            *mocks.DedupStore
	dedup            *messaging.Deduplicator
}

func newDedupFixture() *dedupFixture {
	messageRepo := mocks.NewMessageRepository()
	conversationRepo := mocks.NewConversationRepository()
	optOutRepo := mocks.NewOptOutRepository()
	store := mocks.NewDedupStore()

	dedup := messaging.NewDeduplicator(
		messageRepo, conversationRepo, optOutRepo, store, nil, logger.NewForTesting(),
	)

	return &dedupFixture{
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		optOutRepo:       optOutRepo,
		store:            store,
		dedup:            dedup,
	}
}

// seedConversation stores an existing conversation for an address. Inbound
// processing only links to conversations that already exist.
func (f *dedupFixture) seedConversation(address string) *models.Conversation {
	conv := &models.Conversation{
		ID:                  uuid.New(),
		CounterpartyAddress: address,
		CreatedAt:           time.Now(),
	}
	f.conversationRepo.Add(conv)
	return conv
}

func inbound(externalID, from, body string) *messaging.WebhookPayload {
	return &messaging.WebhookPayload{
		ExternalID: externalID,
		Kind:       "message",
		From:       from,
		To:         "+15550000",
		Body:       body,
	}
}

func TestProcessNewInboundMessage(t *testing.T) {
	f := newDedupFixture()
	seeded := f.seedConversation("+15550100")

	result, err := f.dedup.Process(context.Background(), inbound("ext-1", "+15550100", "On my way"))
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.False(t, result.OptOut)

	event, ok := f.messageRepo.GetByExternalID("ext-1")
	require.True(t, ok)
	require.NotNil(t, event.ConversationID)
	assert.Equal(t, seeded.ID, *event.ConversationID)

	conv, ok := f.conversationRepo.Get(seeded.ID)
	require.True(t, ok)
	assert.Equal(t, 1, conv.UnreadCount)
	assert.Equal(t, "On my way", conv.LastMessagePreview)
	assert.NotNil(t, conv.LastMessageAt)
}

func TestProcessInboundFromUnknownSender(t *testing.T) {
	f := newDedupFixture()

	// No conversation exists for this address. The event is still stored,
	// with its linkage unresolved, and no conversation is created.
	result, err := f.dedup.Process(context.Background(), inbound("ext-new", "+15559999", "who dis"))
	require.NoError(t, err)
	assert.False(t, result.Duplicate)

	event, ok := f.messageRepo.GetByExternalID("ext-new")
	require.True(t, ok)
	assert.Nil(t, event.ConversationID)
	assert.Equal(t, 0, f.conversationRepo.Count())
}

func TestProcessDuplicateDeliveries(t *testing.T) {
	f := newDedupFixture()
	ctx := context.Background()

	f.seedConversation("+15550100")
	payload := inbound("ext-dup", "+15550100", "hello")

	first, err := f.dedup.Process(ctx, payload)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	// The provider redelivers the same webhook N times.
	for i := 0; i < 5; i++ {
		result, err := f.dedup.Process(ctx, payload)
		require.NoError(t, err)
		assert.True(t, result.Duplicate)
	}

	assert.Equal(t, 1, f.messageRepo.Count())

	event, _ := f.messageRepo.GetByExternalID("ext-dup")
	conv, ok := f.conversationRepo.Get(*event.ConversationID)
	require.True(t, ok)
	assert.Equal(t, 1, conv.UnreadCount)
}

func TestProcessDuplicateCaughtByDatabaseWhenCacheDown(t *testing.T) {
	f := newDedupFixture()
	ctx := context.Background()

	payload := inbound("ext-db", "+15550100", "hello")

	_, err := f.dedup.Process(ctx, payload)
	require.NoError(t, err)

	// Cache loses its state and then errors; the unique constraint still
	// suppresses the replay.
	f.store.Fail(errors.New("connection refused"))

	result, err := f.dedup.Process(ctx, payload)
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Equal(t, 1, f.messageRepo.Count())
}

func TestProcessConcurrentDuplicates(t *testing.T) {
	f := newDedupFixture()

	const deliveries = 10
	payload := inbound("ext-race", "+15550100", "hello")

	var wg sync.WaitGroup
	duplicates := make([]bool, deliveries)
	errs := make([]error, deliveries)

	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.dedup.Process(context.Background(), payload)
			errs[i] = err
			if err == nil {
				duplicates[i] = result.Duplicate
			}
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := 0; i < deliveries; i++ {
		require.NoError(t, errs[i])
		if !duplicates[i] {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, f.messageRepo.Count())
}

func TestProcessOptOutKeywords(t *testing.T) {
	tests := []struct {
		body   string
		optOut bool
	}{
		{body: "STOP", optOut: true},
		{body: "stop", optOut: true},
		{body: "  Stop  ", optOut: true},
		{body: "UNSUBSCRIBE", optOut: true},
		{body: "stopall", optOut: true},
		{body: "cancel", optOut: true},
		{body: "end", optOut: true},
		{body: "quit", optOut: true},
		{body: "please stop texting me", optOut: false},
		{body: "STOPPED", optOut: false},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			f := newDedupFixture()
			seeded := f.seedConversation("+15550100")

			result, err := f.dedup.Process(context.Background(), inbound("ext-1", "+15550100", tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.optOut, result.OptOut)

			conv, ok := f.conversationRepo.Get(seeded.ID)
			require.True(t, ok)

			if tt.optOut {
				optOuts := f.optOutRepo.All()
				require.Len(t, optOuts, 1)
				assert.Equal(t, "+15550100", optOuts[0].Address)
				assert.Equal(t, strings.ToUpper(strings.TrimSpace(tt.body)), optOuts[0].Keyword)

				assert.True(t, conv.Stopped)
				assert.Zero(t, conv.UnreadCount, "opt-out messages must not count as unread")
			} else {
				assert.Empty(t, f.optOutRepo.All())
				assert.Equal(t, 1, conv.UnreadCount)
			}
		})
	}
}

func TestProcessOptOutFromUnknownSender(t *testing.T) {
	f := newDedupFixture()

	result, err := f.dedup.Process(context.Background(), inbound("ext-stop", "+15559999", "STOP"))
	require.NoError(t, err)
	assert.True(t, result.OptOut)

	// The opt-out is kept against the bare address; no conversation is
	// created to hang it on.
	optOuts := f.optOutRepo.All()
	require.Len(t, optOuts, 1)
	assert.Equal(t, "+15559999", optOuts[0].Address)
	assert.Nil(t, optOuts[0].ConversationID)
	assert.Equal(t, 0, f.conversationRepo.Count())
}

func TestProcessDeliveryReceipt(t *testing.T) {
	f := newDedupFixture()
	ctx := context.Background()

	// Seed an outbound message the receipt refers to.
	_, err := f.dedup.Process(ctx, inbound("ext-out", "+15550100", "original"))
	require.NoError(t, err)

	result, err := f.dedup.Process(ctx, &messaging.WebhookPayload{
		ExternalID: "ext-out-receipt",
		Kind:       "receipt",
		Status:     "delivered",
	})
	require.NoError(t, err)
	assert.True(t, result.Receipt)
	assert.False(t, result.Duplicate)
}

func TestProcessReceiptForUnknownMessage(t *testing.T) {
	f := newDedupFixture()

	// Receipts may arrive before we see our own send recorded; they are
	// accepted and dropped.
	result, err := f.dedup.Process(context.Background(), &messaging.WebhookPayload{
		ExternalID: "ext-unknown",
		Kind:       "receipt",
		Status:     "failed",
	})
	require.NoError(t, err)
	assert.True(t, result.Receipt)
}

func TestProcessRequiresExternalID(t *testing.T) {
	f := newDedupFixture()

	_, err := f.dedup.Process(context.Background(), &messaging.WebhookPayload{Body: "hi"})
	assert.Error(t, err)
}

func TestProcessLongBodyPreviewTruncated(t *testing.T) {
	f := newDedupFixture()
	f.seedConversation("+15550100")

	body := strings.Repeat("a", 500)
	result, err := f.dedup.Process(context.Background(), inbound("ext-long", "+15550100", body))
	require.NoError(t, err)
	require.False(t, result.Duplicate)

	event, _ := f.messageRepo.GetByExternalID("ext-long")
	conv, ok := f.conversationRepo.Get(*event.ConversationID)
	require.True(t, ok)
	assert.Len(t, conv.LastMessagePreview, 160)
	assert.Equal(t, body, event.Body)
}
