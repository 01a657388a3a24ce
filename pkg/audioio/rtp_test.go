package audioio

import "testing"

func TestFrameAt_FullFrame(t *testing.T) {
	samples := []int16{1, 2, 3, 4, 5, 6}

	frame := frameAt(samples, 2, 4)
	if len(frame) != 4 {
		t.Fatalf("Expected 4 samples, got %d", len(frame))
	}
	for i, want := range []int16{3, 4, 5, 6} {
		if frame[i] != want {
			t.Errorf("frame[%d] = %d, want %d", i, frame[i], want)
		}
	}
}

func TestFrameAt_TailPaddedWithoutMutatingCaller(t *testing.T) {
	// The chunk slice shares its backing array with samples the caller
	// still owns past len(); padding the short tail frame must not
	// write into them.
	backing := make([]int16, 10)
	for i := range backing {
		backing[i] = int16(i + 1)
	}
	samples := backing[:7]

	frame := frameAt(samples, 4, 5)
	if len(frame) != 5 {
		t.Fatalf("Expected 5 samples, got %d", len(frame))
	}
	for i, want := range []int16{5, 6, 7, 0, 0} {
		if frame[i] != want {
			t.Errorf("frame[%d] = %d, want %d", i, frame[i], want)
		}
	}

	for i := 7; i < 10; i++ {
		if backing[i] != int16(i+1) {
			t.Errorf("backing[%d] = %d, caller's samples were overwritten", i, backing[i])
		}
	}
}
