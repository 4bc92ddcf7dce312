package manager

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/cameroncuttingedge/tictactoe_arena/game"
)

var emptyBoard [game.BoardSize]game.Mark

func TestRegistry_Join(t *testing.T) {
	t.Run("first player waits", func(t *testing.T) {
		r := NewRegistry(0)
		g, err := r.Join("A")
		if err != nil {
			t.Fatalf("Join failed: %v", err)
		}
		snap := g.Snapshot()
		if snap.State != game.WaitingForPlayer || snap.Player1 != "A" || snap.Player2 != "" {
			t.Errorf("Unexpected game %+v", snap)
		}
		if got, ok := r.Get(g.ID); !ok || got != g {
			t.Error("Expected game to be registered")
		}
	})

	t.Run("second player starts the game", func(t *testing.T) {
		r := NewRegistry(0)
		first, _ := r.Join("A")
		second, err := r.Join("B")
		if err != nil {
			t.Fatalf("Join failed: %v", err)
		}
		if first != second {
			t.Fatal("Expected B to be seated in A's game")
		}
		snap := second.Snapshot()
		if snap.State != game.Player1Turn || snap.Turn != "A" || snap.Player2 != "B" {
			t.Errorf("Unexpected game %+v", snap)
		}
		if r.Len() != 1 {
			t.Errorf("Expected 1 game, got %d", r.Len())
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		r := NewRegistry(0)
		g1, _ := r.Join("A")
		g2, _ := r.Join("A")
		if g1 != g2 {
			t.Error("Expected the same game for repeated join")
		}
		if g1.Snapshot().Player2 != "" {
			t.Error("Expected no duplicate seat")
		}

		r.Join("B")
		g3, _ := r.Join("B")
		if g3 != g1 {
			t.Error("Expected the same game for seated player2")
		}
	})

	t.Run("third player gets a new game", func(t *testing.T) {
		r := NewRegistry(0)
		g1, _ := r.Join("A")
		r.Join("B")
		g2, _ := r.Join("C")
		if g1 == g2 {
			t.Fatal("Expected a new game for C")
		}
		if g2.Snapshot().State != game.WaitingForPlayer {
			t.Error("Expected C to be waiting")
		}
	})

	t.Run("empty player", func(t *testing.T) {
		r := NewRegistry(0)
		if _, err := r.Join(""); !errors.Is(err, ErrInvalidPlayer) {
			t.Errorf("Expected ErrInvalidPlayer, got %v", err)
		}
	})

	t.Run("capacity", func(t *testing.T) {
		r := NewRegistry(1)
		r.Join("A")
		r.Join("B")
		if _, err := r.Join("C"); !errors.Is(err, ErrCapacity) {
			t.Errorf("Expected ErrCapacity, got %v", err)
		}
		if r.Len() != 1 {
			t.Errorf("Expected failed join to leave 1 game, got %d", r.Len())
		}
	})
}

func TestRegistry_ConcurrentJoin(t *testing.T) {
	r := NewRegistry(0)
	const players = 200

	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.Join(fmt.Sprintf("player-%d", i)); err != nil {
				t.Errorf("Join failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]string)
	for _, snap := range r.Games() {
		if snap.Player1 == "" {
			t.Errorf("Game %s has no player1", snap.ID)
		}
		for _, p := range []string{snap.Player1, snap.Player2} {
			if p == "" {
				continue
			}
			if other, dup := seen[p]; dup {
				t.Errorf("Player %s seated in %s and %s", p, other, snap.ID)
			}
			seen[p] = snap.ID
		}
	}
	if len(seen) != players {
		t.Errorf("Expected %d seated players, got %d", players, len(seen))
	}
	if r.Len() != players/2 {
		t.Errorf("Expected %d games, got %d", players/2, r.Len())
	}
}

func TestRegistry_ConcurrentLeaveJoin(t *testing.T) {
	r := NewRegistry(0)
	const seated = 200

	for i := 0; i < seated; i++ {
		if _, err := r.Join(fmt.Sprintf("seated-%d", i)); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
	}

	// Every third seated player leaves; half of those join again at once.
	present := make(map[string]bool)
	for i := 0; i < seated; i++ {
		if i%3 != 0 || i%2 == 0 {
			present[fmt.Sprintf("seated-%d", i)] = true
		}
	}
	for i := 0; i < seated/2; i++ {
		present[fmt.Sprintf("joiner-%d", i)] = true
	}

	var wg sync.WaitGroup
	for i := 0; i < seated; i += 3 {
		player := fmt.Sprintf("seated-%d", i)
		rejoin := i%2 == 0
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Leave(player)
			if rejoin {
				if _, err := r.Join(player); err != nil {
					t.Errorf("Rejoin failed: %v", err)
				}
			}
		}()
	}
	for i := 0; i < seated/2; i++ {
		player := fmt.Sprintf("joiner-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Join(player); err != nil {
				t.Errorf("Join failed: %v", err)
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]string)
	for _, snap := range r.Games() {
		if snap.Player1 == "" && snap.Player2 == "" {
			t.Errorf("Game %s has no occupants", snap.ID)
		}
		for _, p := range []string{snap.Player1, snap.Player2} {
			if p == "" {
				continue
			}
			if other, dup := seen[p]; dup {
				t.Errorf("Player %s seated in %s and %s", p, other, snap.ID)
			}
			seen[p] = snap.ID
		}
		if snap.State == game.WaitingForPlayer {
			if id, ok := r.waiting.Load(snap.Player1); !ok || id.(string) != snap.ID {
				t.Errorf("Expected waiting %s to be indexed to %s", snap.Player1, snap.ID)
			}
		}
	}
	for p := range present {
		if _, ok := seen[p]; !ok {
			t.Errorf("Expected %s to be seated", p)
		}
	}
	for p, id := range seen {
		if !present[p] {
			t.Errorf("Player %s left but is still seated in %s", p, id)
		}
	}

	r.waiting.Range(func(key, value interface{}) bool {
		player, gameID := key.(string), value.(string)
		g, ok := r.Get(gameID)
		if !ok {
			t.Errorf("Waiting %s points at removed game %s", player, gameID)
			return true
		}
		if !g.HasPlayer(player) {
			t.Errorf("Waiting %s points at game %s without them", player, gameID)
		}
		return true
	})
}

func TestRegistry_LeaveRacesDisconnect(t *testing.T) {
	for i := 0; i < 200; i++ {
		r := NewRegistry(0)
		g, _ := r.Join("A")
		r.Join("B")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Leave("A")
		}()
		go func() {
			defer wg.Done()
			if _, err := g.HandleDisconnect("A"); err == nil {
				r.Remove(g.ID)
			}
		}()
		wg.Wait()

		if _, ok := r.GetByPlayer("A"); ok {
			t.Fatal("Expected A to be unseated")
		}
		if survivor, ok := r.Get(g.ID); ok {
			snap := survivor.Snapshot()
			if snap.Player1 != "B" || snap.Player2 != "" || snap.State != game.WaitingForPlayer {
				t.Fatalf("Expected B waiting alone, got %+v", snap)
			}
			if next, _ := r.Join("C"); next != survivor {
				t.Fatal("Expected C to fill the reopened seat")
			}
		} else if r.Len() != 0 {
			t.Fatalf("Expected no games after forfeit, got %d", r.Len())
		}
	}
}

func TestRegistry_Leave(t *testing.T) {
	t.Run("sole player destroys game", func(t *testing.T) {
		r := NewRegistry(0)
		g, _ := r.Join("A")
		if _, ok := r.Leave("A"); ok {
			t.Error("Expected no surviving game")
		}
		if _, ok := r.Get(g.ID); ok {
			t.Error("Expected game to be removed")
		}
	})

	t.Run("second player leaves", func(t *testing.T) {
		r := NewRegistry(0)
		g, _ := r.Join("A")
		r.Join("B")
		g.Move("A", 0)

		left, ok := r.Leave("B")
		if !ok || left != g {
			t.Fatal("Expected game to survive")
		}
		snap := g.Snapshot()
		if snap.State != game.WaitingForPlayer || snap.Player1 != "A" || snap.Player2 != "" {
			t.Errorf("Unexpected game %+v", snap)
		}
		if snap.Board != emptyBoard {
			t.Errorf("Expected empty board, got %v", snap.Board)
		}

		again, _ := r.Join("C")
		if again != g {
			t.Error("Expected C to fill the reopened seat")
		}
	})

	t.Run("first player leaves", func(t *testing.T) {
		r := NewRegistry(0)
		g, _ := r.Join("A")
		r.Join("B")

		left, ok := r.Leave("A")
		if !ok || left != g {
			t.Fatal("Expected game to survive")
		}
		snap := g.Snapshot()
		if snap.Player1 != "B" || snap.Player2 != "" || snap.State != game.WaitingForPlayer {
			t.Errorf("Unexpected game %+v", snap)
		}
		if again, _ := r.Join("B"); again != g {
			t.Error("Expected B to rejoin its own game")
		}
	})

	t.Run("unknown player", func(t *testing.T) {
		r := NewRegistry(0)
		r.Join("A")
		if g, ok := r.Leave("Z"); ok || g != nil {
			t.Error("Expected absent result")
		}
	})
}

func TestRegistry_GetByPlayer(t *testing.T) {
	r := NewRegistry(0)
	g, _ := r.Join("A")
	r.Join("B")

	for _, p := range []string{"A", "B"} {
		if got, ok := r.GetByPlayer(p); !ok || got != g {
			t.Errorf("Expected to find %s's game", p)
		}
	}
	if _, ok := r.GetByPlayer("C"); ok {
		t.Error("Expected absent for unknown player")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Expected absent for unknown id")
	}
}

func TestRegistry_RemoveAndClose(t *testing.T) {
	r := NewRegistry(0)
	g, _ := r.Join("A")
	r.Remove(g.ID)
	if _, ok := r.Get(g.ID); ok {
		t.Error("Expected game to be removed")
	}

	next, _ := r.Join("A")
	if next == g {
		t.Error("Expected a fresh game after removal")
	}

	r.Join("B")
	r.Join("C")
	r.Close()
	if r.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", r.Len())
	}
}
