package games

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitionAllowed(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{name: "upcoming to live", from: StatusUpcoming, to: StatusLive, want: true},
		{name: "upcoming to cancelled", from: StatusUpcoming, to: StatusCancelled, want: true},
		{name: "upcoming to completed", from: StatusUpcoming, to: StatusCompleted, want: false},
		{name: "live to completed", from: StatusLive, to: StatusCompleted, want: true},
		{name: "live to cancelled", from: StatusLive, to: StatusCancelled, want: true},
		{name: "live to upcoming", from: StatusLive, to: StatusUpcoming, want: false},
		{name: "completed is terminal", from: StatusCompleted, to: StatusLive, want: false},
		{name: "completed cannot be cancelled", from: StatusCompleted, to: StatusCancelled, want: false},
		{name: "cancelled is terminal", from: StatusCancelled, to: StatusUpcoming, want: false},
		{name: "cancelled cannot complete", from: StatusCancelled, to: StatusCompleted, want: false},
		{name: "self transition", from: StatusLive, to: StatusLive, want: false},
		{name: "unknown from", from: Status("paused"), to: StatusLive, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusTransitionAllowed(tt.from, tt.to))
		})
	}
}

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, SideAway, SideHome.Opposite(), "opposite of home should be away")
	assert.Equal(t, SideHome, SideAway.Opposite(), "opposite of away should be home")
}

func TestSideValid(t *testing.T) {
	assert.True(t, SideHome.Valid())
	assert.True(t, SideAway.Valid())
	assert.False(t, Side("left").Valid())
}

func TestFormatValid(t *testing.T) {
	assert.True(t, FormatProfessional.Valid())
	assert.True(t, FormatTournament.Valid())
	assert.True(t, FormatRecreational.Valid())
	assert.False(t, Format("college").Valid())
}

func TestEventTypeValid(t *testing.T) {
	for _, eventType := range []EventType{EventTypeGameStart, EventTypeGoal, EventTypeTurnover,
		EventTypeTimeout, EventTypeSubstitution, EventTypePenalty, EventTypePeriodEnd, EventTypeGameEnd} {
		assert.True(t, eventType.Valid(), "event type %s should be valid", eventType)
	}
	assert.False(t, EventType("halftimeShow").Valid())
}
