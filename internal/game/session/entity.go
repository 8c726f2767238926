// Package session tracks connected players and carries outbound text from the
// game goroutine to each player's connection.
package session

import (
	"fmt"
	"sync"
)

// Entity routes pushed lines to a buffered channel drained by the player's
// connection goroutine.
type Entity struct {
	id     uint32
	events chan string
	mu     sync.Mutex
	closed bool
}

// NewEntity creates an Entity for creature id.
//
// Postcondition: Returns an Entity with an open events channel of bufferSize
// (64 when bufferSize <= 0).
func NewEntity(id uint32, bufferSize int) *Entity {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Entity{id: id, events: make(chan string, bufferSize)}
}

// ID returns the player's creature id.
func (e *Entity) ID() uint32 { return e.id }

// Push enqueues text without blocking.
//
// Postcondition: Returns an error if the entity is closed or its buffer is full.
func (e *Entity) Push(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("entity %d is closed", e.id)
	}
	select {
	case e.events <- text:
		return nil
	default:
		return fmt.Errorf("entity %d event buffer full", e.id)
	}
}

// Events returns the read-only events channel. It is closed by Close.
func (e *Entity) Events() <-chan string { return e.events }

// Close marks the entity closed and closes the events channel. Idempotent.
func (e *Entity) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
	return nil
}

// IsClosed reports whether the entity has been closed.
func (e *Entity) IsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
