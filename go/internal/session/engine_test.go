package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fourthdown/gridlink/go/internal/config"
	"github.com/fourthdown/gridlink/go/internal/matchmaker"
	"github.com/fourthdown/gridlink/go/internal/models"
	"github.com/fourthdown/gridlink/go/internal/outbox"
)

// fakeGraph is a tiny hand-built graph: X-Z-Y (teammate edges) plus a
// draft_class-only edge X-Y directly, enough to exercise validity rules
// and filtering by allowed types.
type fakeGraph struct {
	names map[string]string
	edges map[string][]models.Neighbor
}

func newFakeGraph() *fakeGraph {
	g := &fakeGraph{
		names: map[string]string{"X": "Player X", "Y": "Player Y", "Z": "Player Z"},
		edges: map[string][]models.Neighbor{},
	}
	g.addEdge("X", "Z", models.ConnectionTeammate)
	g.addEdge("Z", "Y", models.ConnectionTeammate)
	g.addEdge("X", "Y", models.ConnectionDraftClass)
	return g
}

func (g *fakeGraph) addEdge(a, b string, t models.ConnectionType) {
	g.edges[a] = append(g.edges[a], models.Neighbor{PlayerID: b, Type: t})
	g.edges[b] = append(g.edges[b], models.Neighbor{PlayerID: a, Type: t})
}

func (g *fakeGraph) GetNeighbors(id string, allowed models.ConnectionTypeSet) []models.Neighbor {
	var out []models.Neighbor
	for _, nb := range g.edges[id] {
		if allowed == nil || allowed.Contains(nb.Type) {
			out = append(out, nb)
		}
	}
	return out
}

func (g *fakeGraph) GetPlayer(id string) (models.Player, bool, error) {
	name, ok := g.names[id]
	if !ok {
		return models.Player{}, false, nil
	}
	return models.Player{ID: id, Name: name}, true, nil
}

type fakePathSearcher struct {
	paths [][]string
}

func (f *fakePathSearcher) ShortestPaths(startID, endID string, allowed models.ConnectionTypeSet, k int) [][]string {
	if len(f.paths) > k {
		return f.paths[:k]
	}
	return f.paths
}

type fakeOutboxWriter struct {
	mu       sync.Mutex
	outcomes []outbox.SessionOutcome
}

func (f *fakeOutboxWriter) InsertOutcome(ctx context.Context, outcome outbox.SessionOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	frames map[string][]OutboundFrame
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{frames: map[string][]OutboundFrame{}}
}

func (e *recordingEmitter) Emit(channelID string, frame OutboundFrame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames[channelID] = append(e.frames[channelID], frame)
}

func (e *recordingEmitter) snapshot(channelID string) []OutboundFrame {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]OutboundFrame, len(e.frames[channelID]))
	copy(out, e.frames[channelID])
	return out
}

// waitFor polls until cond is true or the deadline elapses; used to
// synchronize with the session actor's own goroutine.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func lastFrameType(frames []OutboundFrame) string {
	if len(frames) == 0 {
		return ""
	}
	return frames[len(frames)-1].Type
}

func newTestEngine() (*Engine, *fakeGraph, *fakePathSearcher, *fakeOutboxWriter, *recordingEmitter, *clockwork.FakeClock) {
	graph := newFakeGraph()
	paths := &fakePathSearcher{paths: [][]string{{"X", "Z", "Y"}}}
	ob := &fakeOutboxWriter{}
	emitter := newRecordingEmitter()
	clock := clockwork.NewFakeClock()
	cfg := config.Default()
	cfg.Timing.CountdownSeconds = 0
	cfg.Timing.GameDurationSeconds = 60
	engine := NewEngine(graph, paths, ob, emitter, clock, cfg)
	return engine, graph, paths, ob, emitter, clock
}

func TestMultiplayerValidSubmitDeclaresWinner(t *testing.T) {
	engine, _, _, ob, emitter, _ := newTestEngine()

	a := matchmaker.Entry{ChannelID: "ca", UserID: "alice"}
	b := matchmaker.Entry{ChannelID: "cb", UserID: "bob"}
	if err := engine.CreateMultiplayer(context.Background(), a, b, models.DifficultyEasy, "X", "Y"); err != nil {
		t.Fatal(err)
	}

	engine.Ready("ca")
	engine.Ready("cb")
	waitFor(t, func() bool { return len(emitter.snapshot("ca")) >= 2 && len(emitter.snapshot("cb")) >= 2 })

	engine.SubmitPath(context.Background(), "ca", []string{"X", "Z", "Y"})

	waitFor(t, func() bool { return lastFrameType(emitter.snapshot("ca")) == FrameGameEnd })
	waitFor(t, func() bool { return lastFrameType(emitter.snapshot("cb")) == FrameGameEnd })

	winnerFrame := emitter.snapshot("ca")[len(emitter.snapshot("ca"))-1].Payload.(GameEndPayload)
	if winnerFrame.WinnerUserID == nil || *winnerFrame.WinnerUserID != "alice" {
		t.Fatalf("expected alice to win, got %+v", winnerFrame)
	}
	if len(winnerFrame.WinningPath) != 3 {
		t.Fatalf("expected 3-name winning path, got %v", winnerFrame.WinningPath)
	}

	loserFrame := emitter.snapshot("cb")[len(emitter.snapshot("cb"))-1].Payload.(GameEndPayload)
	if loserFrame.WinnerUserID == nil || *loserFrame.WinnerUserID != "alice" {
		t.Fatalf("expected loser frame to also report alice as winner, got %+v", loserFrame)
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()
	if len(ob.outcomes) != 1 {
		t.Fatalf("expected exactly one outbox outcome, got %d", len(ob.outcomes))
	}
}

func TestMultiplayerInvalidSubmitDecrementsStrikesOnly(t *testing.T) {
	engine, _, _, _, emitter, _ := newTestEngine()

	a := matchmaker.Entry{ChannelID: "ca", UserID: "alice"}
	b := matchmaker.Entry{ChannelID: "cb", UserID: "bob"}
	_ = engine.CreateMultiplayer(context.Background(), a, b, models.DifficultyMedium, "X", "Y")

	engine.Ready("ca")
	engine.Ready("cb")
	waitFor(t, func() bool { return len(emitter.snapshot("ca")) >= 2 })

	// medium forbids draft_class; X-Y direct edge is draft_class only.
	engine.SubmitPath(context.Background(), "ca", []string{"X", "Y"})

	waitFor(t, func() bool { return lastFrameType(emitter.snapshot("ca")) == FrameInvalidPath })
	waitFor(t, func() bool { return lastFrameType(emitter.snapshot("cb")) == FrameOpponentAttemptedPath })

	invalid := emitter.snapshot("ca")[len(emitter.snapshot("ca"))-1].Payload.(InvalidPathPayload)
	if invalid.StrikesRemaining == nil || *invalid.StrikesRemaining != 4 {
		t.Fatalf("expected 4 strikes remaining after one invalid submit on medium, got %+v", invalid)
	}
}

func TestMultiplayerOutOfStrikesDeclaresOpponentWinner(t *testing.T) {
	engine, _, _, _, emitter, _ := newTestEngine()

	a := matchmaker.Entry{ChannelID: "ca", UserID: "alice"}
	b := matchmaker.Entry{ChannelID: "cb", UserID: "bob"}
	_ = engine.CreateMultiplayer(context.Background(), a, b, models.DifficultyHard, "X", "Y")

	engine.Ready("ca")
	engine.Ready("cb")
	waitFor(t, func() bool { return len(emitter.snapshot("ca")) >= 2 })

	for i := 0; i < 3; i++ {
		engine.SubmitPath(context.Background(), "ca", []string{"X", "Y"}) // draft_class only, not allowed in hard
	}

	waitFor(t, func() bool { return lastFrameType(emitter.snapshot("ca")) == FrameGameEnd })

	final := emitter.snapshot("ca")[len(emitter.snapshot("ca"))-1].Payload.(GameEndPayload)
	if final.Reason != string(ReasonOutOfStrikes) {
		t.Fatalf("expected out_of_strikes, got %q", final.Reason)
	}
	if final.WinnerUserID == nil || *final.WinnerUserID != "bob" {
		t.Fatalf("expected bob declared winner, got %+v", final)
	}
}

func TestMultiplayerGiveUpRewritesOpponentReason(t *testing.T) {
	engine, _, _, _, emitter, _ := newTestEngine()

	a := matchmaker.Entry{ChannelID: "ca", UserID: "alice"}
	b := matchmaker.Entry{ChannelID: "cb", UserID: "bob"}
	_ = engine.CreateMultiplayer(context.Background(), a, b, models.DifficultyEasy, "X", "Y")

	engine.Ready("ca")
	engine.Ready("cb")
	waitFor(t, func() bool { return len(emitter.snapshot("ca")) >= 2 })

	engine.GiveUp("ca")

	waitFor(t, func() bool { return lastFrameType(emitter.snapshot("cb")) == FrameGameEnd })

	quitterFrame := emitter.snapshot("ca")[len(emitter.snapshot("ca"))-1].Payload.(GameEndPayload)
	if quitterFrame.Reason != string(ReasonGaveUp) {
		t.Fatalf("expected gave_up for the quitter, got %q", quitterFrame.Reason)
	}
	opponentFrame := emitter.snapshot("cb")[len(emitter.snapshot("cb"))-1].Payload.(GameEndPayload)
	if opponentFrame.Reason != string(ReasonOpponentGaveUp) {
		t.Fatalf("expected opponent_gave_up for the opponent, got %q", opponentFrame.Reason)
	}
	if opponentFrame.WinnerUserID == nil || *opponentFrame.WinnerUserID != "bob" {
		t.Fatalf("expected bob to win on opponent give-up, got %+v", opponentFrame)
	}
}

func TestMultiplayerDisconnectDeclaresRemainingParticipantWinner(t *testing.T) {
	engine, _, _, _, emitter, _ := newTestEngine()

	a := matchmaker.Entry{ChannelID: "ca", UserID: "alice"}
	b := matchmaker.Entry{ChannelID: "cb", UserID: "bob"}
	_ = engine.CreateMultiplayer(context.Background(), a, b, models.DifficultyEasy, "X", "Y")

	engine.Ready("ca")
	engine.Ready("cb")
	waitFor(t, func() bool { return len(emitter.snapshot("ca")) >= 2 })

	engine.Disconnect("cb")

	waitFor(t, func() bool { return lastFrameType(emitter.snapshot("ca")) == FrameGameEnd })

	final := emitter.snapshot("ca")[len(emitter.snapshot("ca"))-1].Payload.(GameEndPayload)
	if final.Reason != string(ReasonOpponentDisconnected) {
		t.Fatalf("expected opponent_disconnected, got %q", final.Reason)
	}
	if final.WinnerUserID == nil || *final.WinnerUserID != "alice" {
		t.Fatalf("expected alice declared winner, got %+v", final)
	}
}

func TestSinglePlayerValidSubmitComputesScore(t *testing.T) {
	engine, _, _, _, emitter, clock := newTestEngine()

	if err := engine.CreateSingle(context.Background(), "solo", "carol", models.DifficultyHard, "X", "Y"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(emitter.snapshot("solo")) >= 1 })

	clock.Advance(12 * time.Second)
	engine.SubmitPath(context.Background(), "solo", []string{"X", "Z", "Y"})

	waitFor(t, func() bool { return lastFrameType(emitter.snapshot("solo")) == FrameGameEnd })

	final := emitter.snapshot("solo")[len(emitter.snapshot("solo"))-1].Payload.(GameEndPayload)
	if final.Score == nil || *final.Score != 9680 {
		t.Fatalf("expected score 9680 for a 2-edge 12s solve, got %+v", final.Score)
	}
}

func TestTimeoutEmitsToBothParticipantsWithSolutions(t *testing.T) {
	engine, _, _, _, emitter, clock := newTestEngine()

	a := matchmaker.Entry{ChannelID: "ca", UserID: "alice"}
	b := matchmaker.Entry{ChannelID: "cb", UserID: "bob"}
	_ = engine.CreateMultiplayer(context.Background(), a, b, models.DifficultyEasy, "X", "Y")

	engine.Ready("ca")
	engine.Ready("cb")
	waitFor(t, func() bool { return len(emitter.snapshot("ca")) >= 2 })

	clock.Advance(61 * time.Second)

	waitFor(t, func() bool { return lastFrameType(emitter.snapshot("ca")) == FrameGameEnd })
	waitFor(t, func() bool { return lastFrameType(emitter.snapshot("cb")) == FrameGameEnd })

	for _, ch := range []string{"ca", "cb"} {
		final := emitter.snapshot(ch)[len(emitter.snapshot(ch))-1].Payload.(GameEndPayload)
		if final.Reason != string(ReasonTimeout) {
			t.Fatalf("expected timeout for %s, got %q", ch, final.Reason)
		}
		if final.WinnerUserID != nil {
			t.Fatalf("expected no winner on timeout, got %+v", final.WinnerUserID)
		}
		if len(final.SolutionPaths) != 1 {
			t.Fatalf("expected the one solution path for %s on timeout, got %v", ch, final.SolutionPaths)
		}
	}
}

func TestExactlyOneTerminalFrameAsLastPerParticipant(t *testing.T) {
	engine, _, _, _, emitter, _ := newTestEngine()

	a := matchmaker.Entry{ChannelID: "ca", UserID: "alice"}
	b := matchmaker.Entry{ChannelID: "cb", UserID: "bob"}
	_ = engine.CreateMultiplayer(context.Background(), a, b, models.DifficultyMedium, "X", "Y")

	engine.Ready("ca")
	engine.Ready("cb")
	waitFor(t, func() bool { return len(emitter.snapshot("ca")) >= 2 })

	engine.SubmitPath(context.Background(), "cb", []string{"X", "Y"}) // invalid: X-Y is draft_class only, not allowed in medium
	engine.SubmitPath(context.Background(), "ca", []string{"X", "Z", "Y"})

	waitFor(t, func() bool { return lastFrameType(emitter.snapshot("ca")) == FrameGameEnd })
	waitFor(t, func() bool { return lastFrameType(emitter.snapshot("cb")) == FrameGameEnd })

	for _, ch := range []string{"ca", "cb"} {
		frames := emitter.snapshot(ch)
		terminalCount := 0
		for i, f := range frames {
			if f.Type == FrameGameEnd {
				terminalCount++
				if i != len(frames)-1 {
					t.Fatalf("terminal frame for %s not last: %+v", ch, frames)
				}
			}
		}
		if terminalCount != 1 {
			t.Fatalf("expected exactly one terminal frame for %s, got %d", ch, terminalCount)
		}
	}
}
