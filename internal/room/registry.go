package room

import (
	"crypto/rand"
	"strings"
	"sync"

	"github.com/google/uuid"

	"zing-server/internal/config"
	"zing-server/internal/store"
)

// Registry is the process-wide table of live rooms, addressable by id,
// by 6-char access code, and by long-lived invite token.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	codes  map[string]string // code -> roomID
	tokens map[string]string // inviteToken -> roomID

	cfg *config.Config
	st  store.Store

	onDestroyed func(roomID string)
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg *config.Config, st store.Store) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		codes:  make(map[string]string),
		tokens: make(map[string]string),
		cfg:    cfg,
		st:     st,
	}
}

// SetOnDestroyed installs a callback fired after a room is removed.
func (reg *Registry) SetOnDestroyed(callback func(roomID string)) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.onDestroyed = callback
}

// Create allocates a new room, starts its actor loop, and registers its
// code and invite token.
func (reg *Registry) Create(visibility Visibility) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	code := reg.uniqueCodeLocked()
	r := newRoom(uuid.NewString(), code, uuid.NewString(), visibility, reg.cfg, reg.st, reg)

	reg.rooms[r.ID] = r
	reg.codes[code] = r.ID
	reg.tokens[r.InviteToken] = r.ID

	go r.run()
	return r
}

// Get returns a room by id.
func (reg *Registry) Get(roomID string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.rooms[roomID]
}

// GetByCode resolves a 6-char access code, case-insensitively.
func (reg *Registry) GetByCode(code string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	if roomID, ok := reg.codes[strings.ToLower(code)]; ok {
		return reg.rooms[roomID]
	}
	return nil
}

// GetByInviteToken resolves a long-lived invite token.
func (reg *Registry) GetByInviteToken(token string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	if roomID, ok := reg.tokens[token]; ok {
		return reg.rooms[roomID]
	}
	return nil
}

// Count returns the number of live rooms.
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// remove unregisters a destroyed room and reclaims its code and token.
func (reg *Registry) remove(r *Room) {
	reg.mu.Lock()
	if current, ok := reg.rooms[r.ID]; !ok || current != r {
		reg.mu.Unlock()
		return
	}
	delete(reg.rooms, r.ID)
	delete(reg.codes, r.Code)
	delete(reg.tokens, r.InviteToken)
	callback := reg.onDestroyed
	reg.mu.Unlock()

	if callback != nil {
		callback(r.ID)
	}
}

// Teardown destroys every live room; test isolation hook.
func (reg *Registry) Teardown() {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.RUnlock()

	for _, r := range rooms {
		r.Destroy()
	}
}

// Room codes are lowercase base-36, collision-checked against live rooms.
const codeCharset = "0123456789abcdefghijklmnopqrstuvwxyz"

func (reg *Registry) uniqueCodeLocked() string {
	for {
		code := generateCode()
		if _, taken := reg.codes[code]; !taken {
			return code
		}
	}
}

func generateCode() string {
	code := make([]byte, 6)
	rand.Read(code)
	for i := range code {
		code[i] = codeCharset[int(code[i])%len(codeCharset)]
	}
	return string(code)
}
