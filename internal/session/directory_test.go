package session_test

import (
	"testing"

	"github.com/nimbuschat/backend/internal/session"
)

type stubConn struct {
	id   string
	sent []string
}

func (c *stubConn) ID() string                  { return c.id }
func (c *stubConn) Send(event string, data any) { c.sent = append(c.sent, event) }

func TestJoinAndResolve(t *testing.T) {
	dir := session.NewDirectory()
	conn := &stubConn{id: "conn-1"}

	if err := dir.Join("alice", conn); err != nil {
		t.Fatalf("Join err: %v", err)
	}

	got, ok := dir.Resolve("alice")
	if !ok {
		t.Fatal("expected alice to resolve")
	}
	if got.ID() != "conn-1" {
		t.Fatalf("unexpected conn: %s", got.ID())
	}
	if dir.Count() != 1 {
		t.Fatalf("expected count 1, got %d", dir.Count())
	}
}

func TestJoinBlankUserID(t *testing.T) {
	dir := session.NewDirectory()

	if err := dir.Join("   ", &stubConn{id: "conn-1"}); err != session.ErrInvalidUserID {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	if dir.Count() != 0 {
		t.Fatalf("blank join must not change state, count=%d", dir.Count())
	}
}

func TestJoinSupersedesPriorConnection(t *testing.T) {
	dir := session.NewDirectory()
	first := &stubConn{id: "conn-1"}
	second := &stubConn{id: "conn-2"}

	if err := dir.Join("alice", first); err != nil {
		t.Fatalf("Join err: %v", err)
	}
	if err := dir.Join("alice", second); err != nil {
		t.Fatalf("Join err: %v", err)
	}

	got, ok := dir.Resolve("alice")
	if !ok || got.ID() != "conn-2" {
		t.Fatalf("expected conn-2 after rejoin, got %v ok=%v", got, ok)
	}
	if dir.Count() != 1 {
		t.Fatalf("expected one user after rejoin, got %d", dir.Count())
	}
}

func TestLeaveStaleConnectionIsNoOp(t *testing.T) {
	dir := session.NewDirectory()
	first := &stubConn{id: "conn-1"}
	second := &stubConn{id: "conn-2"}

	dir.Join("alice", first)
	dir.Join("alice", second)

	// The superseded connection disconnecting late must not evict the new one.
	dir.Leave(first)

	got, ok := dir.Resolve("alice")
	if !ok || got.ID() != "conn-2" {
		t.Fatal("stale leave must not remove the current mapping")
	}
}

func TestLeaveCurrentConnection(t *testing.T) {
	dir := session.NewDirectory()
	conn := &stubConn{id: "conn-1"}

	dir.Join("alice", conn)
	dir.Leave(conn)

	if _, ok := dir.Resolve("alice"); ok {
		t.Fatal("expected mapping removed after leave")
	}
	if dir.Count() != 0 {
		t.Fatalf("expected empty directory, count=%d", dir.Count())
	}
}

func TestUserIDs(t *testing.T) {
	dir := session.NewDirectory()
	dir.Join("alice", &stubConn{id: "conn-1"})
	dir.Join("bob", &stubConn{id: "conn-2"})

	ids := dir.UserIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 user ids, got %d", len(ids))
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen["alice"] || !seen["bob"] {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
