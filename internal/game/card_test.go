package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCard(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		want    Card
		wantErr bool
	}{
		{name: "number card", id: "hearts-7", want: Card{Hearts, "7"}},
		{name: "ten", id: "diamonds-10", want: Card{Diamonds, "10"}},
		{name: "court card", id: "spades-J", want: Card{Spades, "J"}},
		{name: "uppercase suit", id: "CLUBS-2", want: Card{Clubs, "2"}},
		{name: "lowercase rank", id: "clubs-q", want: Card{Clubs, "Q"}},
		{name: "unknown suit", id: "stars-7", wantErr: true},
		{name: "unknown rank", id: "hearts-11", wantErr: true},
		{name: "missing separator", id: "hearts7", wantErr: true},
		{name: "empty rank", id: "hearts-", wantErr: true},
		{name: "empty", id: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCard(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadCardID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCardIDRoundTrip(t *testing.T) {
	for _, c := range NewDeck() {
		parsed, err := ParseCard(c.ID())
		require.NoError(t, err, c.ID())
		assert.Equal(t, c, parsed)
	}
}

func TestCardPoints(t *testing.T) {
	assert.Equal(t, 2, Card{Diamonds, "10"}.Points())
	assert.Equal(t, 1, Card{Clubs, "2"}.Points())
	assert.Equal(t, 1, Card{Hearts, "A"}.Points())
	assert.Equal(t, 1, Card{Spades, "10"}.Points())
	assert.Equal(t, 1, Card{Clubs, "J"}.Points())
	assert.Equal(t, 1, Card{Hearts, "Q"}.Points())
	assert.Equal(t, 1, Card{Diamonds, "K"}.Points())
	assert.Equal(t, 0, Card{Hearts, "2"}.Points())
	assert.Equal(t, 0, Card{Spades, "9"}.Points())
}

func TestDeckTotals(t *testing.T) {
	deck := NewDeck()
	require.Len(t, deck, 52)

	seen := make(map[Card]bool, 52)
	total := 0
	for _, c := range deck {
		assert.False(t, seen[c], "duplicate card %s", c.ID())
		seen[c] = true
		total += c.Points()
	}
	// 8 points in tens and the 10 of diamonds extra, plus A/J/Q/K.
	assert.Equal(t, 22, total)
}
