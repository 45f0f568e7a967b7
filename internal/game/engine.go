package game

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

const cardsPerHand = 4

// Seat describes one participant at game start.
type Seat struct {
	PlayerID string
	Name     string
	Team     int
}

// NewMatch builds the initial state for a match and performs the first
// dealing round. Seats are in table order; seat 0 is the initial dealer.
// The same seed always produces the same shuffle.
func NewMatch(seed string, seats []Seat, target int) (State, []Event) {
	return NewMatchWithDealer(seed, seats, target, 0)
}

// NewMatchWithDealer is NewMatch with an explicit initial dealer seat;
// rematches rotate the dealer one seat from the previous game.
func NewMatchWithDealer(seed string, seats []Seat, target, dealerSeat int) (State, []Event) {
	players := make([]PlayerState, len(seats))
	for i, seat := range seats {
		players[i] = PlayerState{
			ID:   seat.PlayerID,
			Name: seat.Name,
			Seat: i,
			Team: seat.Team,
		}
	}

	s := State{
		Seed:             seed,
		RoundNumber:      1,
		Players:          players,
		DealerSeat:       dealerSeat % len(players),
		Target:           target,
		LastCapturerSeat: -1,
	}
	return startRound(s)
}

// startRound shuffles, cuts, and deals the first hand of a round.
func startRound(s State) (State, []Event) {
	rng := rand.New(rand.NewSource(roundSeed(s.Seed, s.RoundNumber)))
	deck := NewDeck()
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})

	// Cut as at the table: halves A and B, B's bottom card reserved for
	// the dealer, the four above it opening the talon face up. The
	// reserved card sits at the back of the deck so it is dealt last.
	halfA, halfB := deck[:26], deck[26:]
	reserved := halfB[len(halfB)-1]
	talon := append([]Card(nil), halfB[len(halfB)-5:len(halfB)-1]...)
	remainder := halfB[:len(halfB)-5]

	s.Deck = append(append(append([]Card(nil), halfA...), remainder...), reserved)
	s.Talon = talon
	s.HandNumber = 0
	s.RoundZings = TeamPoints{}
	s.Pending = nil
	s.LastCapturerSeat = -1
	s.RoundOver = false
	s.TurnSeat = (s.DealerSeat + 1) % len(s.Players)
	for i := range s.Players {
		s.Players[i].Hand = nil
		s.Players[i].Taken = nil
	}

	return dealHand(s)
}

// dealHand gives every player four cards from the top of the deck, in
// seat order starting after the dealer.
func dealHand(s State) (State, []Event) {
	s.HandNumber++
	dealt := make(map[string][]string, len(s.Players))

	n := len(s.Players)
	for i := 0; i < n; i++ {
		seat := (s.DealerSeat + 1 + i) % n
		cards := s.Deck[:cardsPerHand]
		s.Deck = s.Deck[cardsPerHand:]
		s.Players[seat].Hand = append(s.Players[seat].Hand, cards...)

		ids := make([]string, len(cards))
		for j, c := range cards {
			ids[j] = c.ID()
		}
		dealt[s.Players[seat].ID] = ids
	}

	ev, _ := NewEvent(EventHandsDealt, "", HandsDealtPayload{
		HandNumber: s.HandNumber,
		Dealt:      dealt,
	})
	return s, []Event{ev}
}

// NextRound rotates the dealer one seat clockwise and deals a fresh
// round. Only valid after the previous round ended.
func NextRound(prev State) (State, []Event) {
	s := prev.Clone()
	s.RoundNumber++
	s.DealerSeat = (s.DealerSeat + 1) % len(s.Players)
	return startRound(s)
}

// Play applies a play_card intent. The input state is not mutated; the
// returned state and events describe the transition. Validation failures
// return the input state unchanged with a typed error.
func Play(prev State, playerID, cardID string) (State, []Event, error) {
	if prev.RoundOver {
		return prev, nil, ErrRoundOver
	}
	if prev.CurrentTurnPlayerID() != playerID {
		return prev, nil, ErrNotYourTurn
	}
	card, err := ParseCard(cardID)
	if err != nil {
		return prev, nil, err
	}

	s := prev.Clone()
	player := &s.Players[s.TurnSeat]

	handIdx := -1
	for i, c := range player.Hand {
		if c == card {
			handIdx = i
			break
		}
	}
	if handIdx < 0 {
		return prev, nil, ErrIllegalCard
	}

	player.Hand = append(player.Hand[:handIdx], player.Hand[handIdx+1:]...)

	prevTalonSize := len(s.Talon)
	var prevTop *Card
	if prevTalonSize > 0 {
		top := s.Talon[prevTalonSize-1]
		prevTop = &top
	}
	s.Talon = append(s.Talon, card)

	events := make([]Event, 0, 4)
	played, _ := NewEvent(EventCardPlayed, playerID, CardPlayedPayload{
		PlayerID: playerID,
		CardID:   card.ID(),
	})
	events = append(events, played)

	capture := card.Rank == "J" || (prevTop != nil && prevTop.Rank == card.Rank)
	if capture {
		var zing *ZingInfo
		if prevTalonSize == 1 {
			bottom := *prevTop
			switch {
			case card.Rank == "J" && bottom.Rank != "J":
				// Jack sweeping a lone non-jack is a plain capture.
			case card.Rank == "J" && bottom.Rank == "J":
				zing = &ZingInfo{Points: 20, Double: true}
			default:
				zing = &ZingInfo{Points: 10}
			}
		}
		if zing != nil {
			s.RoundZings = s.RoundZings.Add(player.Team, zing.Points)
		}

		taken := make([]string, len(s.Talon))
		for i, c := range s.Talon {
			taken[i] = c.ID()
		}
		player.Taken = append(player.Taken, s.Talon...)
		s.Talon = nil
		s.LastCapturerSeat = player.Seat
		s.Pending = nil

		ev, _ := NewEvent(EventTalonTaken, playerID, TalonTakenPayload{
			PlayerID: playerID,
			Taken:    taken,
			Zing:     zing,
		})
		events = append(events, ev)
	} else if len(s.Talon) == 1 {
		s.Pending = &PendingZing{CardID: card.ID(), PlayerID: playerID}
	} else {
		s.Pending = nil
	}

	s.TurnSeat = (s.TurnSeat + 1) % len(s.Players)

	if s.handsEmpty() {
		if len(s.Deck) > 0 {
			var dealt []Event
			s, dealt = dealHand(s)
			events = append(events, dealt...)
		} else {
			var tail []Event
			s, tail = endRound(s)
			events = append(events, tail...)
		}
	}

	return s, events, nil
}

// ForcedCardID returns the card a timer expiry plays on a player's
// behalf: the leftmost card in hand order.
func ForcedCardID(s State, playerID string) (string, error) {
	p, err := s.PlayerByID(playerID)
	if err != nil {
		return "", err
	}
	if len(p.Hand) == 0 {
		return "", ErrIllegalCard
	}
	return p.Hand[0].ID(), nil
}

// endRound awards the leftover talon, tallies base points, zings and the
// majority bonus, and folds the round into the cumulative scores.
func endRound(s State) (State, []Event) {
	events := make([]Event, 0, 3)

	if len(s.Talon) > 0 && s.LastCapturerSeat >= 0 {
		capturer := &s.Players[s.LastCapturerSeat]
		taken := make([]string, len(s.Talon))
		for i, c := range s.Talon {
			taken[i] = c.ID()
		}
		capturer.Taken = append(capturer.Taken, s.Talon...)
		s.Talon = nil

		ev, _ := NewEvent(EventTalonAwarded, capturer.ID, TalonAwardedPayload{
			PlayerID: capturer.ID,
			Taken:    taken,
		})
		events = append(events, ev)
	}

	summaries := map[string]TeamRoundSummary{}
	var roundPoints TeamPoints
	var takenCounts TeamPoints
	twoClubsTeam := -1

	for team := 0; team < 2; team++ {
		summary := TeamRoundSummary{ScoringCards: []string{}, Players: []string{}}
		for _, p := range s.Players {
			if p.Team != team {
				continue
			}
			summary.Players = append(summary.Players, p.ID)
			summary.TotalTaken += len(p.Taken)
			for _, c := range p.Taken {
				if c.Points() > 0 {
					summary.ScoringCards = append(summary.ScoringCards, c.ID())
					summary.TotalPoints += c.Points()
				}
				if c == twoOfClubs {
					twoClubsTeam = team
				}
			}
		}
		summary.Zings = s.RoundZings.Get(team)
		summary.TotalPoints += summary.Zings

		takenCounts = takenCounts.Add(team, summary.TotalTaken)
		roundPoints = roundPoints.Add(team, summary.TotalPoints)
		summaries[fmt.Sprintf("team%d", team)] = summary
	}

	var bonus *RoundBonus
	switch {
	case takenCounts.Team0 > takenCounts.Team1:
		bonus = &RoundBonus{Reason: "most_cards", AwardedToTeam: 0}
	case takenCounts.Team1 > takenCounts.Team0:
		bonus = &RoundBonus{Reason: "most_cards", AwardedToTeam: 1}
	case twoClubsTeam >= 0:
		bonus = &RoundBonus{Reason: "tie_two_clubs", AwardedToTeam: twoClubsTeam}
	}
	if bonus != nil {
		roundPoints = roundPoints.Add(bonus.AwardedToTeam, 3)
		summary := summaries[fmt.Sprintf("team%d", bonus.AwardedToTeam)]
		summary.TotalPoints += 3
		summaries[fmt.Sprintf("team%d", bonus.AwardedToTeam)] = summary
	}

	s.Scores.Team0 += roundPoints.Team0
	s.Scores.Team1 += roundPoints.Team1
	s.RoundOver = true

	roundEnd, _ := NewEvent(EventRoundEnd, "", RoundEndPayload{
		Scores: roundPoints,
		Teams:  summaries,
		Bonus:  bonus,
	})
	scores, _ := NewEvent(EventScoresUpdated, "", ScoresUpdatedPayload{
		Team0: s.Scores.Team0,
		Team1: s.Scores.Team1,
	})
	return s, append(events, roundEnd, scores)
}

// MatchOutcome reports where the match stands after a round.
type MatchOutcome int

const (
	MatchContinues MatchOutcome = iota
	MatchWon
	TargetExtended
)

// ResolveTarget inspects cumulative scores against the current target.
// When both teams cross in the same round the target is raised by step
// and the match continues; when exactly one crosses it wins.
func ResolveTarget(prev State, step int) (State, MatchOutcome, int) {
	s := prev
	crossed0 := s.Scores.Team0 >= s.Target
	crossed1 := s.Scores.Team1 >= s.Target

	switch {
	case crossed0 && crossed1:
		s.Target += step
		return s, TargetExtended, -1
	case crossed0:
		return s, MatchWon, 0
	case crossed1:
		return s, MatchWon, 1
	default:
		return s, MatchContinues, -1
	}
}

func roundSeed(seed string, round int) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s/%d", seed, round)
	return int64(h.Sum64())
}
