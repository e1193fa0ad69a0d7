package matchmaker

import (
	"context"
	"sync"
	"testing"

	"github.com/fourthdown/gridlink/go/internal/models"
)

type fakeDifficulty struct{}

func (fakeDifficulty) Get(d models.Difficulty) (models.DifficultyParams, bool) {
	return models.DifficultyParams{Difficulty: d, MinEdges: 1, Strikes: 5}, true
}

type alwaysPicker struct{ ok bool }

func (p alwaysPicker) PickEndpoints(models.DifficultyParams) (string, string, bool) {
	if !p.ok {
		return "", "", false
	}
	return "start-player", "end-player", true
}

type recordingFactory struct {
	mu    sync.Mutex
	pairs [][2]string
}

func (f *recordingFactory) CreateMultiplayer(ctx context.Context, a, b Entry, difficulty models.Difficulty, startID, endID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairs = append(f.pairs, [2]string{a.ChannelID, b.ChannelID})
	return nil
}

func TestEnqueueDequeueIsNoOp(t *testing.T) {
	mm := New(alwaysPicker{ok: false}, fakeDifficulty{}, &recordingFactory{})
	if err := mm.Enqueue(context.Background(), "c1", "u1", models.DifficultyEasy); err != nil {
		t.Fatal(err)
	}
	if !mm.Dequeue("c1") {
		t.Fatal("expected dequeue to remove the freshly enqueued entry")
	}
	if mm.Len() != 0 {
		t.Fatalf("expected empty queue after enqueue+dequeue, got %d", mm.Len())
	}
}

func TestEnqueueRejectsDuplicateChannel(t *testing.T) {
	mm := New(alwaysPicker{ok: false}, fakeDifficulty{}, &recordingFactory{})
	if err := mm.Enqueue(context.Background(), "c1", "u1", models.DifficultyEasy); err != nil {
		t.Fatal(err)
	}
	if err := mm.Enqueue(context.Background(), "c1", "u1", models.DifficultyEasy); err == nil {
		t.Fatal("expected duplicate enqueue on the same channel to be rejected")
	}
}

func TestTryMatchPairsOldestTwo(t *testing.T) {
	factory := &recordingFactory{}
	mm := New(alwaysPicker{ok: true}, fakeDifficulty{}, factory)

	ctx := context.Background()
	_ = mm.Enqueue(ctx, "c1", "u1", models.DifficultyEasy)
	_ = mm.Enqueue(ctx, "c2", "u2", models.DifficultyMedium)

	factory.mu.Lock()
	defer factory.mu.Unlock()
	if len(factory.pairs) != 1 {
		t.Fatalf("expected exactly one match, got %d", len(factory.pairs))
	}
	if factory.pairs[0][0] != "c1" || factory.pairs[0][1] != "c2" {
		t.Fatalf("expected oldest-two pairing c1,c2, got %v", factory.pairs[0])
	}
	if mm.Len() != 0 {
		t.Fatalf("expected queue drained after match, got %d", mm.Len())
	}
}

func TestTryMatchAbortsOnEndpointExhaustion(t *testing.T) {
	factory := &recordingFactory{}
	mm := New(alwaysPicker{ok: false}, fakeDifficulty{}, factory)

	ctx := context.Background()
	_ = mm.Enqueue(ctx, "c1", "u1", models.DifficultyEasy)
	_ = mm.Enqueue(ctx, "c2", "u2", models.DifficultyEasy)

	if len(factory.pairs) != 0 {
		t.Fatalf("expected no match when the endpoint picker is exhausted, got %v", factory.pairs)
	}
	if mm.Len() != 2 {
		t.Fatalf("expected both entries re-prepended to the queue, got %d", mm.Len())
	}
}
