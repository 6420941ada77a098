package events

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversTypedPayload(t *testing.T) {
	bus := NewBus()
	conversationID := uuid.New()
	participants := []uuid.UUID{uuid.New(), uuid.New()}

	var got []ConversationChanged
	bus.Subscribe(ConversationChanged{}.EventName(), func(ev Event) {
		changed, ok := ev.(ConversationChanged)
		require.True(t, ok)
		got = append(got, changed)
	})

	bus.Emit(ConversationChanged{ConversationID: conversationID, ParticipantIDs: participants})

	require.Len(t, got, 1)
	assert.Equal(t, conversationID, got[0].ConversationID)
	assert.Equal(t, participants, got[0].ParticipantIDs)
}

func TestBusFansOutToAllListeners(t *testing.T) {
	bus := NewBus()

	first, second := 0, 0
	bus.Subscribe(ConversationChanged{}.EventName(), func(Event) { first++ })
	bus.Subscribe(ConversationChanged{}.EventName(), func(Event) { second++ })

	bus.Emit(ConversationChanged{ConversationID: uuid.New()})
	bus.Emit(ConversationChanged{ConversationID: uuid.New()})

	assert.Equal(t, 2, first)
	assert.Equal(t, 2, second)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()

	calls := 0
	unsubscribe := bus.Subscribe(ConversationChanged{}.EventName(), func(Event) { calls++ })

	bus.Emit(ConversationChanged{ConversationID: uuid.New()})
	unsubscribe()
	bus.Emit(ConversationChanged{ConversationID: uuid.New()})
	unsubscribe()
	bus.Emit(ConversationChanged{ConversationID: uuid.New()})

	assert.Equal(t, 1, calls)
}

func TestBusUnsubscribeRemovesOnlyOwnListener(t *testing.T) {
	bus := NewBus()

	first, second := 0, 0
	unsubscribeFirst := bus.Subscribe(ConversationChanged{}.EventName(), func(Event) { first++ })
	bus.Subscribe(ConversationChanged{}.EventName(), func(Event) { second++ })

	unsubscribeFirst()
	bus.Emit(ConversationChanged{ConversationID: uuid.New()})

	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestBusEmitWithoutListeners(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Emit(ConversationChanged{ConversationID: uuid.New()})
	})
}
