package transcript

import (
	"testing"
)

func TestLog_PartialsAccumulate(t *testing.T) {
	l := NewLog()

	l.Append(SenderTranslator, "Hel")
	e := l.Append(SenderTranslator, "lo")

	if e.Text != "Hello" {
		t.Errorf("Accumulated text = %q, want Hello", e.Text)
	}
	if e.Final {
		t.Error("Open entry must not be final")
	}
	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1 (fragments share one entry)", l.Len())
	}

	sealed, ok := l.Finalize(SenderTranslator)
	if !ok {
		t.Fatal("Finalize found no open entry")
	}
	if !sealed.Final || sealed.Text != "Hello" {
		t.Errorf("Sealed entry = %+v", sealed)
	}

	// A new fragment after finalize opens a fresh entry.
	l.Append(SenderTranslator, "Again")
	if l.Len() != 2 {
		t.Errorf("Len = %d, want 2", l.Len())
	}
}

func TestLog_SendersInterleave(t *testing.T) {
	l := NewLog()

	l.Append(SenderCaller, "one")
	l.Append(SenderTranslator, "uno")
	l.Append(SenderCaller, " two")

	entries := l.Entries()
	if len(entries) != 2 {
		t.Fatalf("Len = %d, want 2", len(entries))
	}
	if entries[0].Sender != SenderCaller || entries[0].Text != "one two" {
		t.Errorf("Caller entry = %+v", entries[0])
	}
	if entries[1].Sender != SenderTranslator || entries[1].Text != "uno" {
		t.Errorf("Translator entry = %+v", entries[1])
	}
}

func TestLog_AppendFinalClosesOpenEntry(t *testing.T) {
	l := NewLog()

	l.Append(SenderCaller, "partial guess")
	e := l.AppendFinal(SenderCaller, "the real sentence")

	if !e.Final || e.Text != "the real sentence" {
		t.Errorf("Entry = %+v", e)
	}
	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1 (final replaced the partial)", l.Len())
	}

	if _, ok := l.Finalize(SenderCaller); ok {
		t.Error("Expected no open entry after AppendFinal")
	}
}

func TestLog_FinalizeWithoutOpenEntry(t *testing.T) {
	l := NewLog()
	if _, ok := l.Finalize(SenderTranslator); ok {
		t.Error("Finalize on empty log reported an entry")
	}
}

func TestLog_Subscribe(t *testing.T) {
	l := NewLog()

	ch, cancel := l.Subscribe(8)
	defer cancel()

	l.Append(SenderCaller, "hi")
	l.Finalize(SenderCaller)

	first := <-ch
	if first.Text != "hi" || first.Final {
		t.Errorf("First update = %+v", first)
	}
	second := <-ch
	if !second.Final {
		t.Errorf("Second update = %+v, want final", second)
	}
	if first.ID != second.ID {
		t.Error("Updates for one utterance must share an ID")
	}
}

func TestLog_SlowSubscriberDoesNotBlock(t *testing.T) {
	l := NewLog()

	_, cancel := l.Subscribe(1)
	defer cancel()

	// More updates than buffer; Append must not block.
	for i := 0; i < 10; i++ {
		l.AppendFinal(SenderCaller, "x")
	}
	if l.Len() != 10 {
		t.Errorf("Len = %d, want 10", l.Len())
	}
}

func TestLog_CancelIdempotent(t *testing.T) {
	l := NewLog()
	_, cancel := l.Subscribe(1)
	cancel()
	cancel()

	l.AppendFinal(SenderCaller, "after cancel")
}
