package session

import (
	"errors"
	"strings"
	"sync"
)

// ErrInvalidUserID rejects joins with a blank user id.
var ErrInvalidUserID = errors.New("invalid user id")

// Conn is the opaque transport handle the directory tracks. Handles are
// compared by ID, never by pointer identity.
type Conn interface {
	ID() string
	Send(event string, data any)
}

// Directory maps each logical user to their single active connection. It is
// owned by the composition root and injected wherever connections need to be
// resolved; one mutex covers both the forward map and the reverse index.
type Directory struct {
	mu     sync.RWMutex
	byUser map[string]Conn
	byConn map[string]string
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		byUser: make(map[string]Conn),
		byConn: make(map[string]string),
	}
}

// Join binds userID to conn, unconditionally superseding any prior mapping
// for that user. The superseded connection is not notified; it simply stops
// receiving pushes.
func (d *Directory) Join(userID string, conn Conn) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUserID
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.byUser[userID]; ok && old.ID() != conn.ID() {
		delete(d.byConn, old.ID())
	}
	d.byUser[userID] = conn
	d.byConn[conn.ID()] = userID
	return nil
}

// Leave removes the mapping only if conn is still the one currently bound to
// its user. A connection that was superseded leaves no trace here, so its
// late disconnect must not evict the newer mapping.
func (d *Directory) Leave(conn Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()

	userID, ok := d.byConn[conn.ID()]
	if !ok {
		return
	}

	current, ok := d.byUser[userID]
	if !ok || current.ID() != conn.ID() {
		return
	}

	delete(d.byUser, userID)
	delete(d.byConn, conn.ID())
}

// Resolve returns the live connection for userID, if any.
func (d *Directory) Resolve(userID string) (Conn, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	conn, ok := d.byUser[userID]
	return conn, ok
}

// UserOf returns the user currently bound to conn, if any.
func (d *Directory) UserOf(conn Conn) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	userID, ok := d.byConn[conn.ID()]
	return userID, ok
}

// Count returns the number of connected users.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byUser)
}

// UserIDs lists the currently connected users.
func (d *Directory) UserIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.byUser))
	for id := range d.byUser {
		ids = append(ids, id)
	}
	return ids
}
