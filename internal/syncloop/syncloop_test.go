package syncloop

import (
	"context"
	"testing"
	"time"
)

type fakeClient struct {
	libraries   []Library
	itemsByLib  map[string][]Item
	matchCalls  []string
	matchResult map[string]bool
}

func (f *fakeClient) ListLibraries(ctx context.Context) ([]Library, error) {
	return f.libraries, nil
}

func (f *fakeClient) ListItems(ctx context.Context, libraryID string) ([]Item, error) {
	return f.itemsByLib[libraryID], nil
}

func (f *fakeClient) MatchItem(ctx context.Context, itemID string) (bool, error) {
	f.matchCalls = append(f.matchCalls, itemID)
	return f.matchResult[itemID], nil
}

func TestReconcileSkipsItemsWithDescription(t *testing.T) {
	client := &fakeClient{
		libraries: []Library{{ID: "lib1"}},
		itemsByLib: map[string][]Item{
			"lib1": {
				{ID: "book1", Title: "Has Description", Description: "already set"},
				{ID: "book2", Title: "Missing Description"},
			},
		},
		matchResult: map[string]bool{"book2": true},
	}

	loop := NewLoop(client, time.Hour, 0, nil)
	matched, err := loop.reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if matched != 1 {
		t.Fatalf("expected 1 matched item, got %d", matched)
	}
	if len(client.matchCalls) != 1 || client.matchCalls[0] != "book2" {
		t.Fatalf("expected match to be attempted only for book2, got %v", client.matchCalls)
	}
}

func TestReconcileAcrossMultipleLibraries(t *testing.T) {
	client := &fakeClient{
		libraries: []Library{{ID: "lib1"}, {ID: "lib2"}},
		itemsByLib: map[string][]Item{
			"lib1": {{ID: "a", Title: "A"}},
			"lib2": {{ID: "b", Title: "B"}},
		},
		matchResult: map[string]bool{"a": true, "b": false},
	}

	loop := NewLoop(client, time.Hour, 0, nil)
	matched, err := loop.reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if matched != 1 {
		t.Fatalf("expected 1 matched item across libraries, got %d", matched)
	}
	if len(client.matchCalls) != 2 {
		t.Fatalf("expected both libraries' items to be attempted, got %v", client.matchCalls)
	}
}

func TestReconcileStopsOnContextCancellation(t *testing.T) {
	client := &fakeClient{
		libraries: []Library{{ID: "lib1"}},
		itemsByLib: map[string][]Item{
			"lib1": {{ID: "a", Title: "A"}, {ID: "b", Title: "B"}},
		},
		matchResult: map[string]bool{},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loop := NewLoop(client, time.Hour, time.Millisecond, nil)
	_, err := loop.reconcile(ctx)
	if err == nil {
		t.Fatalf("expected context cancellation error")
	}
}

func TestLoopRunAndStop(t *testing.T) {
	client := &fakeClient{
		libraries:   []Library{},
		itemsByLib:  map[string][]Item{},
		matchResult: map[string]bool{},
	}
	loop := NewLoop(client, time.Millisecond, 0, nil)

	done := make(chan struct{})
	go func() {
		loop.Run(context.Background())
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	loop.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("loop did not stop in time")
	}
}
