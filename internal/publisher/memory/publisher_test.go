package memory

import (
	"context"
	"errors"
	"testing"
)

func TestPublisherRecordsMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id, err := pub.Publish(context.Background(), "journal-pages", map[string]int{"page": 1})
	if err != nil || id != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 1 || msgs[0].Topic != "journal-pages" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	boom := errors.New("topic deleted")
	pub.FailWith(boom)
	if _, err := pub.Publish(context.Background(), "t", "x"); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	pub.FailWith(nil)
	if _, err := pub.Publish(context.Background(), "t", "x"); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if n := len(pub.Messages()); n != 1 {
		t.Fatalf("expected 1 recorded message, got %d", n)
	}
}
