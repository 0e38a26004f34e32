package http3

import (
	"testing"

	"github.com/saitolume/h3engine/frame"
)

func TestProtocolEnforcerRequiresSettingsFirst(t *testing.T) {
	e := &ProtocolEnforcer{}
	if err := e.HandleFrame(1, RoleControl, 0, &frame.DataFrame{Payload: []byte{1}}); err == nil {
		t.Fatalf("expected error for DATA as first control-stream frame")
	}
}

func TestProtocolEnforcerRejectsSecondSettings(t *testing.T) {
	e := &ProtocolEnforcer{}
	if err := e.HandleFrame(1, RoleControl, 0, &frame.SettingsFrame{}); err != nil {
		t.Fatalf("first SETTINGS should be accepted: %v", err)
	}
	if err := e.HandleFrame(1, RoleControl, 1, &frame.SettingsFrame{}); err == nil {
		t.Fatalf("expected error for second SETTINGS on control stream")
	}
}

func TestProtocolEnforcerRejectsIllegalControlFrames(t *testing.T) {
	e := &ProtocolEnforcer{}
	if err := e.HandleFrame(1, RoleControl, 0, &frame.SettingsFrame{}); err != nil {
		t.Fatalf("first SETTINGS should be accepted: %v", err)
	}
	if err := e.HandleFrame(1, RoleControl, 1, &frame.HeadersFrame{}); err == nil {
		t.Fatalf("expected error for HEADERS on control stream")
	}
	if err := e.HandleFrame(1, RoleControl, 2, &frame.DataFrame{}); err == nil {
		t.Fatalf("expected error for DATA on control stream")
	}
}

func TestProtocolEnforcerAllowsDataOnRequestStream(t *testing.T) {
	e := &ProtocolEnforcer{}
	if err := e.HandleFrame(4, RoleRequest, 0, &frame.DataFrame{Payload: []byte{1}}); err != nil {
		t.Fatalf("DATA on a request stream should be legal: %v", err)
	}
}

func TestProtocolEnforcerRejectsReservedTypeOnRequestStream(t *testing.T) {
	e := &ProtocolEnforcer{}
	if err := e.HandleFrame(4, RoleRequest, 0, &frame.UnknownFrame{RawType: 0x02}); err == nil {
		t.Fatalf("expected error for reserved frame type on request stream")
	}
}

func TestFrameCounterTallies(t *testing.T) {
	c := NewFrameCounter()
	c.HandleFrame(1, RoleControl, 0, &frame.DataFrame{})
	c.HandleFrame(1, RoleControl, 1, &frame.DataFrame{})
	c.HandleFrame(1, RoleControl, 2, &frame.SettingsFrame{})

	if got := c.Count(frame.TypeData); got != 2 {
		t.Errorf("Count(DATA) = %d, want 2", got)
	}
	if got := c.Count(frame.TypeSettings); got != 1 {
		t.Errorf("Count(SETTINGS) = %d, want 1", got)
	}
	if got := c.Total(); got != 3 {
		t.Errorf("Total() = %d, want 3", got)
	}
}
