package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrAlreadyConnected is returned when a creature or character name
	// already has a session.
	ErrAlreadyConnected = errors.New("player already connected")
	// ErrNotConnected is returned when no session exists for the creature.
	ErrNotConnected = errors.New("player not connected")
)

// PlayerSession tracks a connected player.
type PlayerSession struct {
	// CreatureID is the id of the player's creature in the world.
	CreatureID uint32
	// Name is the character display name.
	Name string
	// Username is the account name (for logging).
	Username string
	// CharacterID is the persistent character id; 0 for guests.
	CharacterID int64
	// Entity carries outbound text to the connection.
	Entity *Entity
}

// Manager tracks all active player sessions. It implements
// notification.Sender. All methods are safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	players map[uint32]*PlayerSession
	byName  map[string]uint32 // lowercased name -> creature id

	buffer int
	logger *zap.Logger
}

// NewManager creates an empty Manager whose entities buffer up to buffer lines.
func NewManager(buffer int, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		players: make(map[uint32]*PlayerSession),
		byName:  make(map[string]uint32),
		buffer:  buffer,
		logger:  logger,
	}
}

// AddPlayer registers a session for creatureID.
//
// Precondition: creatureID != 0 and name non-empty.
// Postcondition: Returns the new session, or an error wrapping
// ErrAlreadyConnected when the id or the name is taken.
func (m *Manager) AddPlayer(creatureID uint32, name, username string, characterID int64) (*PlayerSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(name)
	if _, exists := m.players[creatureID]; exists {
		return nil, fmt.Errorf("creature %d: %w", creatureID, ErrAlreadyConnected)
	}
	if _, exists := m.byName[key]; exists {
		return nil, fmt.Errorf("character %q: %w", name, ErrAlreadyConnected)
	}
	sess := &PlayerSession{
		CreatureID:  creatureID,
		Name:        name,
		Username:    username,
		CharacterID: characterID,
		Entity:      NewEntity(creatureID, m.buffer),
	}
	m.players[creatureID] = sess
	m.byName[key] = creatureID
	return sess, nil
}

// RemovePlayer removes the session and closes its entity.
func (m *Manager) RemovePlayer(creatureID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, exists := m.players[creatureID]
	if !exists {
		return fmt.Errorf("creature %d: %w", creatureID, ErrNotConnected)
	}
	_ = sess.Entity.Close()
	delete(m.players, creatureID)
	delete(m.byName, strings.ToLower(sess.Name))
	return nil
}

// GetPlayer returns the session for creatureID.
func (m *Manager) GetPlayer(creatureID uint32) (*PlayerSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.players[creatureID]
	return sess, ok
}

// GetPlayerByName returns the session of the character named name, ignoring case.
func (m *Manager) GetPlayerByName(name string) (*PlayerSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return m.players[id], true
}

// Names returns the display names of all connected players, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.players))
	for _, sess := range m.players {
		names = append(names, sess.Name)
	}
	sort.Strings(names)
	return names
}

// PlayerCount returns the number of connected players.
func (m *Manager) PlayerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.players)
}

// Send pushes text to creatureID's connection. Monsters and disconnected
// players are silently skipped; a full buffer drops the line with a warning.
func (m *Manager) Send(creatureID uint32, text string) {
	sess, ok := m.GetPlayer(creatureID)
	if !ok {
		return
	}
	if err := sess.Entity.Push(text); err != nil {
		m.logger.Warn("dropping outbound line",
			zap.Uint32("creature", creatureID),
			zap.String("name", sess.Name),
			zap.Error(err),
		)
	}
}
