package turn_test

import (
	"testing"

	"github.com/MrWong99/earshot/internal/turn"
)

func TestSubstringMatcher(t *testing.T) {
	t.Parallel()
	m := turn.NewSubstringMatcher(turn.DefaultExitPhrases...)
	tests := []struct {
		text   string
		phrase string
		ok     bool
	}{
		{text: "please exit now", phrase: "exit", ok: true},
		{text: "STOP", phrase: "stop", ok: true},
		{text: "ok, I quit.", phrase: "quit", ok: true},
		{text: "Goodbye then", phrase: "goodbye", ok: true},
		{text: "start my stopwatch", phrase: "stop", ok: true},
		{text: "what's the weather", ok: false},
		{text: "", ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			phrase, ok := m.Match(tc.text)
			if ok != tc.ok || phrase != tc.phrase {
				t.Errorf("Match(%q) = (%q, %v), want (%q, %v)", tc.text, phrase, ok, tc.phrase, tc.ok)
			}
		})
	}
}

func TestWordMatcher(t *testing.T) {
	t.Parallel()
	m := turn.NewWordMatcher("stop", "That's all")
	tests := []struct {
		text string
		ok   bool
	}{
		{text: "Stop!", ok: true},
		{text: "please, stop now", ok: true},
		{text: "start my stopwatch", ok: false},
		{text: "that's all for today", ok: true},
		{text: "that is all", ok: false},
		{text: "all that's left", ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			if _, ok := m.Match(tc.text); ok != tc.ok {
				t.Errorf("Match(%q) ok = %v, want %v", tc.text, ok, tc.ok)
			}
		})
	}
}

func TestPhoneticMatcher(t *testing.T) {
	t.Parallel()
	m := turn.NewPhoneticMatcher([]string{"quit", "exit"})
	tests := []struct {
		text   string
		phrase string
		ok     bool
	}{
		{text: "quit", phrase: "quit", ok: true},
		{text: "I want to quite", phrase: "quit", ok: true},
		{text: "Exit.", phrase: "exit", ok: true},
		{text: "hello there", ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			phrase, ok := m.Match(tc.text)
			if ok != tc.ok || phrase != tc.phrase {
				t.Errorf("Match(%q) = (%q, %v), want (%q, %v)", tc.text, phrase, ok, tc.phrase, tc.ok)
			}
		})
	}
}

func TestPhoneticMatcher_Threshold(t *testing.T) {
	t.Parallel()
	strict := turn.NewPhoneticMatcher([]string{"quit"}, turn.WithPhoneticThreshold(1))
	if _, ok := strict.Match("quite"); ok {
		t.Error("strict matcher accepted a near miss")
	}
	if _, ok := strict.Match("quit"); !ok {
		t.Error("strict matcher rejected the exact phrase")
	}
}

func TestNewExitMatcher(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mode    string
		wantErr bool
	}{
		{mode: ""},
		{mode: turn.MatchSubstring},
		{mode: turn.MatchWord},
		{mode: turn.MatchPhonetic},
		{mode: "regex", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.mode, func(t *testing.T) {
			t.Parallel()
			m, err := turn.NewExitMatcher(tc.mode, nil)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, ok := m.Match("goodbye"); !ok {
				t.Error("default phrases not applied")
			}
		})
	}
}

func TestSignal(t *testing.T) {
	t.Parallel()
	s := turn.NewSignal()
	if s.IsSet() {
		t.Fatal("new signal is set")
	}
	s.Set()
	s.Set()
	if !s.IsSet() {
		t.Fatal("signal not set")
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed")
	}
}
