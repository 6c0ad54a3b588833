package logging

import "testing"

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(5)
	if !s.ShouldLog(0, "retrieving") {
		t.Fatal("first event should log")
	}
	if s.ShouldLog(1, "retrieving") {
		t.Fatal("same bucket should be suppressed")
	}
	if !s.ShouldLog(5.2, "retrieving") {
		t.Fatal("crossing a bucket boundary should log")
	}
	if !s.ShouldLog(100, "retrieving") {
		t.Fatal("completion should log")
	}
}

func TestProgressSamplerPhaseChange(t *testing.T) {
	s := NewProgressSampler(5)
	s.ShouldLog(50, "retrieving")
	if !s.ShouldLog(10, "relaying") {
		t.Fatal("phase change should log even at lower percent")
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(5)
	s.ShouldLog(90, "retrieving")
	s.Reset()
	if !s.ShouldLog(0, "retrieving") {
		t.Fatal("reset sampler should log the first event again")
	}
}
