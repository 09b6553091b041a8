package session

import (
	"errors"
	"testing"
	"time"

	"github.com/museworks/velatura/pkg/types"
)

func TestStore_CreateUniqueIDs(t *testing.T) {
	t.Parallel()
	s := NewStore()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := s.Create()
		if id == "" {
			t.Fatal("Create returned an empty id")
		}
		if seen[id] {
			t.Fatalf("Create returned duplicate id %q", id)
		}
		seen[id] = true
	}
	if got := s.Len(); got != 100 {
		t.Errorf("Len() = %d, want 100", got)
	}
}

func TestStore_HistoryPreservesOrder(t *testing.T) {
	t.Parallel()
	s := NewStore()
	id := s.Create()

	want := []types.Turn{
		{Role: types.RoleUser, Content: "Tell me about your art."},
		{Role: types.RoleAssistant, Content: "My art is my truth, painted in blood and color."},
		{Role: types.RoleUser, Content: "What about Diego?"},
		{Role: types.RoleAssistant, Content: "Diego was my universe and my earthquake."},
	}
	for _, turn := range want {
		s.Append(id, turn)
	}

	got := s.History(id)
	if len(got) != len(want) {
		t.Fatalf("History returned %d turns, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("turn %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestStore_HistoryReturnsCopy(t *testing.T) {
	t.Parallel()
	s := NewStore()
	id := s.Create()
	s.Append(id, types.Turn{Role: types.RoleUser, Content: "original"})

	h := s.History(id)
	h[0].Content = "mutated"

	if got := s.History(id)[0].Content; got != "original" {
		t.Errorf("store content = %q after mutating returned slice, want original", got)
	}
}

func TestStore_HistoryUnknownSession(t *testing.T) {
	t.Parallel()
	s := NewStore()
	if got := s.History("nope"); len(got) != 0 {
		t.Errorf("History(unknown) = %v, want empty", got)
	}
}

func TestStore_DestroyUnknown(t *testing.T) {
	t.Parallel()
	s := NewStore()
	other := s.Create()
	s.Append(other, types.Turn{Role: types.RoleUser, Content: "hi"})

	if err := s.Destroy("unknown"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Destroy(unknown) = %v, want ErrSessionNotFound", err)
	}
	// No side effects on other sessions.
	if len(s.History(other)) != 1 {
		t.Error("Destroy(unknown) affected another session")
	}
}

func TestStore_DestroyFiresHook(t *testing.T) {
	t.Parallel()
	var destroyed []string
	s := NewStore(WithDestroyHook(func(id string) {
		destroyed = append(destroyed, id)
	}))

	id := s.Create()
	if err := s.Destroy(id); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if len(destroyed) != 1 || destroyed[0] != id {
		t.Errorf("destroy hook calls = %v, want [%s]", destroyed, id)
	}
	if s.Exists(id) {
		t.Error("session still exists after Destroy")
	}

	// Unknown ids never reach the hook.
	s.Destroy("unknown")
	if len(destroyed) != 1 {
		t.Errorf("destroy hook fired for unknown id: %v", destroyed)
	}
}

func TestStore_CreateHookCountsImplicitRecreations(t *testing.T) {
	t.Parallel()
	var created []string
	s := NewStore()
	s.SetCreateHook(func(id string) {
		created = append(created, id)
	})

	id := s.Create()
	if len(created) != 1 || created[0] != id {
		t.Fatalf("create hook calls after Create = %v, want [%s]", created, id)
	}

	// Appending to a live session is not a creation.
	s.Append(id, types.Turn{Role: types.RoleUser, Content: "hi"})
	if len(created) != 1 {
		t.Errorf("create hook fired for an append to a live session: %v", created)
	}

	// Appending to an unknown id recreates the session and must count, or a
	// matching destroy-side decrement drives the balance negative.
	s.Append("implicit", types.Turn{Role: types.RoleUser, Content: "hello"})
	if len(created) != 2 || created[1] != "implicit" {
		t.Errorf("create hook calls after implicit recreate = %v, want 2 with %q last", created, "implicit")
	}
}

func TestStore_ReapIdleSessions(t *testing.T) {
	t.Parallel()
	clock := time.Now()
	var destroyed []string
	s := NewStore(
		WithDestroyHook(func(id string) { destroyed = append(destroyed, id) }),
		withClock(func() time.Time { return clock }),
	)

	stale := s.Create()
	clock = clock.Add(10 * time.Minute)
	fresh := s.Create()

	expired := s.reap(5 * time.Minute)
	if len(expired) != 1 || expired[0] != stale {
		t.Fatalf("reap returned %v, want [%s]", expired, stale)
	}
	if s.Exists(stale) {
		t.Error("stale session survived reaping")
	}
	if !s.Exists(fresh) {
		t.Error("fresh session was reaped")
	}
	if len(destroyed) != 1 || destroyed[0] != stale {
		t.Errorf("destroy hook calls = %v, want [%s]", destroyed, stale)
	}
}

func TestStore_TouchDefersReaping(t *testing.T) {
	t.Parallel()
	clock := time.Now()
	s := NewStore(withClock(func() time.Time { return clock }))

	id := s.Create()
	clock = clock.Add(4 * time.Minute)
	s.Touch(id)
	clock = clock.Add(4 * time.Minute)

	if expired := s.reap(5 * time.Minute); len(expired) != 0 {
		t.Errorf("reap destroyed touched session: %v", expired)
	}
}
