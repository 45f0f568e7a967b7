package matchmaking

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"zing-server/internal/logger"
	"zing-server/internal/room"
	"zing-server/internal/ws"
)

// Queue modes.
const (
	Mode1v1 = "1v1"
	Mode2v2 = "2v2"
)

const sweepInterval = 5 * time.Second

// MatchmakerError is a sentinel error type for the matchmaking package.
type MatchmakerError string

func (e MatchmakerError) Error() string { return string(e) }

const (
	ErrBadMode       MatchmakerError = "unknown matchmaking mode"
	ErrAlreadyQueued MatchmakerError = "session is already queued"
	ErrNotQueued     MatchmakerError = "session is not queued"
)

type entry struct {
	sess       *ws.Client
	playerID   string
	name       string
	enqueuedAt time.Time
}

// Matchmaker runs one FIFO queue per mode and fills matches strictly in
// arrival order. A filled match gets a matchmaking-visibility room with
// the game started immediately.
type Matchmaker struct {
	mu     sync.Mutex
	queues map[string][]*entry

	reg *room.Registry
	log *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a matchmaker and starts its sweep loop.
func New(reg *room.Registry) *Matchmaker {
	m := &Matchmaker{
		queues: map[string][]*entry{
			Mode1v1: nil,
			Mode2v2: nil,
		},
		reg:  reg,
		log:  logger.Get(),
		done: make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Stop halts the sweep loop.
func (m *Matchmaker) Stop() {
	m.closeOnce.Do(func() { close(m.done) })
}

// Enqueue adds a session to a mode's queue and returns its 1-based
// position. Filling is attempted immediately.
func (m *Matchmaker) Enqueue(sess *ws.Client, mode string) (int, error) {
	if mode != Mode1v1 && mode != Mode2v2 {
		return 0, ErrBadMode
	}

	m.mu.Lock()
	for _, queue := range m.queues {
		for _, e := range queue {
			if e.sess == sess {
				m.mu.Unlock()
				return 0, ErrAlreadyQueued
			}
		}
	}

	m.queues[mode] = append(m.queues[mode], &entry{
		sess:       sess,
		playerID:   sess.PlayerID(),
		name:       sess.Name(),
		enqueuedAt: time.Now(),
	})
	position := len(m.queues[mode])
	sess.SetState(ws.StateQueued)

	cohort := m.popCohortLocked(mode)
	m.mu.Unlock()

	if cohort != nil {
		m.startMatch(mode, cohort)
	}
	return position, nil
}

// Cancel removes a session from whichever queue holds it.
func (m *Matchmaker) Cancel(sess *ws.Client) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for mode, queue := range m.queues {
		for i, e := range queue {
			if e.sess == sess {
				m.queues[mode] = append(queue[:i], queue[i+1:]...)
				sess.SetState(ws.StateLobby)
				return mode, nil
			}
		}
	}
	return "", ErrNotQueued
}

// HandleDisconnect drops a dead session from the queues.
func (m *Matchmaker) HandleDisconnect(sess *ws.Client) {
	m.Cancel(sess)
}

// QueueLength returns the live length of a mode's queue.
func (m *Matchmaker) QueueLength(mode string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[mode])
}

func need(mode string) int {
	if mode == Mode2v2 {
		return 4
	}
	return 2
}

// popCohortLocked removes dead sessions from the head of the queue and
// pops a full cohort when one is available. Caller holds the lock.
func (m *Matchmaker) popCohortLocked(mode string) []*entry {
	queue := m.queues[mode]
	alive := queue[:0]
	for _, e := range queue {
		if e.sess.IsClosed() {
			continue
		}
		alive = append(alive, e)
	}
	m.queues[mode] = alive

	n := need(mode)
	if len(alive) < n {
		return nil
	}

	cohort := append([]*entry(nil), alive[:n]...)
	m.queues[mode] = append([]*entry(nil), alive[n:]...)
	return cohort
}

// startMatch creates the room, joins the cohort, and starts the game.
// Teams in 2v2 alternate by queue order, so the two longest waiters end
// up on opposite teams.
func (m *Matchmaker) startMatch(mode string, cohort []*entry) {
	// A session can die between pop and here; joining a closed session
	// would succeed silently, so the whole cohort is checked first.
	for _, e := range cohort {
		if e.sess.IsClosed() {
			m.dissolve(mode, cohort)
			return
		}
	}

	r := m.reg.Create(room.VisibilityMatchmaking)

	playerIDs := make([]string, len(cohort))
	for i, e := range cohort {
		playerIDs[i] = e.playerID
	}

	var joined []*entry
	for _, e := range cohort {
		if err := r.Join(e.sess, e.name, room.RolePlayer); err != nil {
			m.log.Warn("matchmade join failed",
				zap.String("player_id", e.playerID), zap.Error(err))
			continue
		}
		joined = append(joined, e)
	}

	if len(joined) < len(cohort) {
		for _, e := range joined {
			r.Leave(e.playerID)
		}
		r.Destroy()
		m.dissolve(mode, joined)
		return
	}

	msg, err := ws.NewMessage(ws.MsgMatchFound, ws.MatchFoundPayload{
		RoomID:  r.ID,
		Mode:    mode,
		Players: playerIDs,
	})
	if err == nil {
		for _, e := range cohort {
			e.sess.SendMessage(msg)
		}
	}

	var startErr error
	if mode == Mode2v2 {
		team0 := []string{cohort[0].playerID, cohort[2].playerID}
		team1 := []string{cohort[1].playerID, cohort[3].playerID}
		startErr = r.StartMatchmade(room.Mode2v2Party, team0, team1)
	} else {
		startErr = r.StartMatchmade(room.Mode1v1, nil, nil)
	}
	if startErr != nil {
		m.log.Error("matchmade game failed to start",
			zap.String("room_id", r.ID), zap.Error(startErr))
		return
	}

	m.log.Info("match filled",
		zap.String("room_id", r.ID),
		zap.String("mode", mode),
		zap.Strings("players", playerIDs))
}

// dissolve breaks up a cohort with an unreachable member: the live
// entries go back to the head of their queue, ordering preserved, and
// are told why the hold fell through.
func (m *Matchmaker) dissolve(mode string, cohort []*entry) {
	var survivors []*entry
	for _, e := range cohort {
		if !e.sess.IsClosed() {
			survivors = append(survivors, e)
		}
	}
	if len(survivors) == 0 {
		return
	}

	m.mu.Lock()
	m.queues[mode] = append(append([]*entry(nil), survivors...), m.queues[mode]...)
	m.mu.Unlock()

	msg, err := ws.NewMessage(ws.MsgQueueLeft, ws.QueueLeftPayload{
		Mode:   mode,
		Reason: "partner_disconnected",
	})
	for _, e := range survivors {
		e.sess.SetState(ws.StateQueued)
		if err == nil {
			e.sess.SendMessage(msg)
		}
	}

	m.log.Info("cohort dissolved",
		zap.String("mode", mode),
		zap.Int("requeued", len(survivors)))
}

// sweepLoop periodically clears dead sessions and retries fills, so a
// queue does not sit full behind an abandoned socket.
func (m *Matchmaker) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, mode := range []string{Mode1v1, Mode2v2} {
				m.mu.Lock()
				cohort := m.popCohortLocked(mode)
				m.mu.Unlock()
				if cohort != nil {
					m.startMatch(mode, cohort)
				}
			}
		case <-m.done:
			return
		}
	}
}
