package watch

import (
	"strings"
	"testing"
)

func TestBaseWatcher_AddRemoveSubscription(t *testing.T) {
	b := NewBaseWatcher("test")

	sub := &Subscription{ID: "test_1"}
	b.AddSubscription(sub)

	if !b.HasSubscriptions() {
		t.Error("expected HasSubscriptions to be true")
	}

	removed := b.RemoveSubscription("test_1")
	if removed == nil {
		t.Error("expected removed subscription")
	}
	if removed.ID != "test_1" {
		t.Errorf("expected ID test_1, got %s", removed.ID)
	}

	if b.HasSubscriptions() {
		t.Error("expected HasSubscriptions to be false")
	}

	removed = b.RemoveSubscription("nonexistent")
	if removed != nil {
		t.Error("expected nil for non-existent subscription")
	}
}

func TestBaseWatcher_GenerateIDUsesPrefix(t *testing.T) {
	b := NewBaseWatcher("seg")
	a, c := b.GenerateID(), b.GenerateID()
	if !strings.HasPrefix(a, "seg_") {
		t.Errorf("id %q lacks prefix", a)
	}
	if a == c {
		t.Errorf("ids not unique: %q", a)
	}
}

func TestBaseWatcher_NotifyAllReachesEverySubscriber(t *testing.T) {
	b := NewBaseWatcher("test")
	n1, n2 := &captureNotifier{}, &captureNotifier{}
	b.AddSubscription(&Subscription{ID: "a", Notifier: n1})
	b.AddSubscription(&Subscription{ID: "b", Notifier: n2})

	got := b.NotifyAll("x.changed", func(sub *Subscription) any {
		return map[string]string{"id": sub.ID}
	})
	if got != 2 || n1.count() != 1 || n2.count() != 1 {
		t.Fatalf("notified %d, counts %d/%d", got, n1.count(), n2.count())
	}
	if n1.methods[0] != "x.changed" {
		t.Errorf("method = %q", n1.methods[0])
	}
}
