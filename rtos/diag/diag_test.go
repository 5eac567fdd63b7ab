package diag

import "testing"

func TestBufferAccumulatesLines(t *testing.T) {
	b := &Buffer{}
	b.WriteLine("first")
	b.WriteLine("second")
	if b.Last() != "second" {
		t.Fatalf("Last() = %q; want %q", b.Last(), "second")
	}
	if len(b.Lines) != 2 {
		t.Fatalf("len(Lines) = %d; want 2", len(b.Lines))
	}
}

func TestBufferLastOnEmptyBuffer(t *testing.T) {
	b := &Buffer{}
	if b.Last() != "" {
		t.Fatalf("Last() on empty buffer = %q; want empty string", b.Last())
	}
}

func TestSafeReturnsDiscardForNil(t *testing.T) {
	s := Safe(nil)
	s.WriteLine("dropped") // must not panic
	if _, ok := s.(Discard); !ok {
		t.Fatalf("Safe(nil) did not return a Discard sink")
	}
}

func TestSafePassesThroughNonNilSink(t *testing.T) {
	b := &Buffer{}
	s := Safe(b)
	s.WriteLine("kept")
	if b.Last() != "kept" {
		t.Fatalf("Safe(sink) should return the same sink")
	}
}
