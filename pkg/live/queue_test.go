package live

import (
	"testing"
)

func TestSendQueue_FIFO(t *testing.T) {
	q := NewSendQueue(4)
	defer q.Close()

	for i := 0; i < 3; i++ {
		if err := q.Push([]byte{byte(i)}, 16000); err != nil {
			t.Fatalf("Push %d failed: %v", i, err)
		}
	}

	for i := 0; i < 3; i++ {
		c := <-q.C()
		if c.PCM[0] != byte(i) {
			t.Errorf("Chunk %d: got payload %d", i, c.PCM[0])
		}
		if c.SampleRate != 16000 {
			t.Errorf("Chunk %d: got rate %d", i, c.SampleRate)
		}
	}
}

func TestSendQueue_DropsOldestWhenFull(t *testing.T) {
	q := NewSendQueue(2)
	defer q.Close()

	for i := 0; i < 5; i++ {
		if err := q.Push([]byte{byte(i)}, 16000); err != nil {
			t.Fatalf("Push %d failed: %v", i, err)
		}
	}

	if q.Dropped() != 3 {
		t.Errorf("Dropped = %d, want 3", q.Dropped())
	}

	// The two newest chunks survive.
	first := <-q.C()
	second := <-q.C()
	if first.PCM[0] != 3 || second.PCM[0] != 4 {
		t.Errorf("Survivors = %d, %d; want 3, 4", first.PCM[0], second.PCM[0])
	}
}

func TestSendQueue_PushAfterClose(t *testing.T) {
	q := NewSendQueue(2)
	q.Close()
	q.Close() // idempotent

	if err := q.Push([]byte{1}, 16000); err != ErrClosed {
		t.Errorf("Push after Close = %v, want ErrClosed", err)
	}

	if _, ok := <-q.C(); ok {
		t.Error("Expected drain channel to be closed")
	}
}
