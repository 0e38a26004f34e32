package http3

import (
	"testing"

	"github.com/saitolume/h3engine/frame"
)

func TestSettingsFramerOmitsDefaults(t *testing.T) {
	g := NewSettingsFramer(Settings{MaxFieldSectionSize: 4096}, false)
	f, ok := g.GenerateFrame()
	if !ok {
		t.Fatalf("expected a frame")
	}
	sf := f.(*frame.SettingsFrame)
	if len(sf.Pairs) != 1 {
		t.Fatalf("got %d pairs, want 1 (everything else is default)", len(sf.Pairs))
	}
	if v, ok := sf.Get(frame.SettingMaxFieldSectionSize); !ok || v != 4096 {
		t.Fatalf("MAX_FIELD_SECTION_SIZE = %d,%v want 4096,true", v, ok)
	}
	if !g.IsDone() {
		t.Fatalf("expected IsDone after emitting")
	}
}

func TestSettingsFramerPlaceholdersServerOnly(t *testing.T) {
	client := NewSettingsFramer(Settings{NumPlaceholders: 5}, false)
	f, _ := client.GenerateFrame()
	if _, ok := f.(*frame.SettingsFrame).Get(frame.SettingNumPlaceholders); ok {
		t.Fatalf("client SettingsFramer should not emit NUM_PLACEHOLDERS")
	}

	server := NewSettingsFramer(Settings{NumPlaceholders: 5}, true)
	f2, _ := server.GenerateFrame()
	if v, ok := f2.(*frame.SettingsFrame).Get(frame.SettingNumPlaceholders); !ok || v != 5 {
		t.Fatalf("server SettingsFramer should emit NUM_PLACEHOLDERS=5, got %d,%v", v, ok)
	}
}

func TestSettingsHandlerAppliesOnce(t *testing.T) {
	var got Settings
	var calls int
	h := NewSettingsHandler(func(s Settings) *Error {
		got = s
		calls++
		return nil
	})

	sf := &frame.SettingsFrame{Pairs: []frame.SettingPair{
		{ID: frame.SettingMaxFieldSectionSize, Value: 2048},
		{ID: frame.SettingQPACKBlockedStreams, Value: 16},
	}}
	if err := h.HandleFrame(1, RoleControl, 0, sf); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}
	if calls != 1 {
		t.Fatalf("onSettings called %d times, want 1", calls)
	}
	if got.MaxFieldSectionSize != 2048 || got.QPACKBlockedStreams != 16 {
		t.Fatalf("got %#v", got)
	}

	if err := h.HandleFrame(1, RoleControl, 1, sf); err == nil {
		t.Fatalf("expected error on second SETTINGS frame")
	}
}

func TestSettingsHandlerRejectsMalformed(t *testing.T) {
	h := NewSettingsHandler(nil)
	sf := &frame.SettingsFrame{ParseError: frame.ParseErrorExcessive}
	if err := h.HandleFrame(1, RoleControl, 0, sf); err == nil {
		t.Fatalf("expected error for an excessive-load SETTINGS frame")
	}
}
