package frame_test

import (
	"bytes"
	"testing"

	"github.com/saitolume/h3engine/frame"
)

func TestDataFrameParse(t *testing.T) {
	b := []byte{0x00, 0x04, 0x11, 0x22, 0x33, 0x44}
	f, n, ok, err := frame.TryParse(b, frame.Options{})
	if err != nil || !ok {
		t.Fatalf("TryParse failed: ok=%v err=%v", ok, err)
	}
	if n != 6 {
		t.Fatalf("consumed = %d, want 6", n)
	}
	df, ok := f.(*frame.DataFrame)
	if !ok {
		t.Fatalf("got %T, want *DataFrame", f)
	}
	if !bytes.Equal(df.Payload, []byte{0x11, 0x22, 0x33, 0x44}) {
		t.Fatalf("payload = % x", df.Payload)
	}
	if df.PayloadLen() != 4 {
		t.Fatalf("PayloadLen() = %d, want 4", df.PayloadLen())
	}
	wl, err := frame.WireLen(df)
	if err != nil || wl != 6 {
		t.Fatalf("WireLen() = %d,%v want 6,nil", wl, err)
	}
}

func TestSettingsFrameParse(t *testing.T) {
	b := []byte{0x04, 0x08, 0x06, 0x44, 0x00, 0x09, 0x0f, 0x4a, 0xba, 0x00}
	f, n, ok, err := frame.TryParse(b, frame.Options{})
	if err != nil || !ok {
		t.Fatalf("TryParse failed: ok=%v err=%v", ok, err)
	}
	if n != len(b) {
		t.Fatalf("consumed = %d, want %d", n, len(b))
	}
	sf := f.(*frame.SettingsFrame)
	if !sf.IsValid() {
		t.Fatalf("expected valid SETTINGS frame")
	}
	if v, ok := sf.Get(frame.SettingMaxFieldSectionSize); !ok || v != 0x0400 {
		t.Fatalf("MAX_FIELD_SECTION_SIZE = %d,%v want 0x400,true", v, ok)
	}
	if v, ok := sf.Get(frame.SettingNumPlaceholders); !ok || v != 0x0f {
		t.Fatalf("NUM_PLACEHOLDERS = %d,%v want 0xf,true", v, ok)
	}
	if len(sf.Pairs) != 3 {
		t.Fatalf("expected 3 pairs (including the unknown one), got %d", len(sf.Pairs))
	}
}

func TestSettingsExcessiveLoad(t *testing.T) {
	b := []byte{0x04, 0x08, 0x06, 0x44, 0x00, 0x09, 0x0f, 0x4a, 0xba, 0x00}
	f, _, ok, err := frame.TryParse(b, frame.Options{MaxSettings: 1})
	if err != nil || !ok {
		t.Fatalf("TryParse failed: ok=%v err=%v", ok, err)
	}
	sf := f.(*frame.SettingsFrame)
	if sf.ParseError != frame.ParseErrorExcessive {
		t.Fatalf("ParseError = %v, want ParseErrorExcessive", sf.ParseError)
	}
}

// 2-byte-encoded frame type for SETTINGS (0x04) must still parse correctly.
func TestPaddedFrameType(t *testing.T) {
	b := []byte{0x40, 0x04, 0x03, 0x06, 0x44, 0x00}
	f, n, ok, err := frame.TryParse(b, frame.Options{})
	if err != nil || !ok {
		t.Fatalf("TryParse failed: ok=%v err=%v", ok, err)
	}
	if n != 6 {
		t.Fatalf("consumed = %d, want 6", n)
	}
	if f.Type() != frame.TypeSettings {
		t.Fatalf("type = %v, want SETTINGS", f.Type())
	}
}

// Feeding bytes one at a time must yield the same sequence of decoded
// frames as feeding them all at once.
func TestIncrementalDecodingMatchesBulk(t *testing.T) {
	input := []byte{
		0xc0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, // type = HEADERS, 8-byte varint
		0x04, 0x11, 0x22, 0x33, 0x44, // length=4, payload
		0x00, 0x04, 0xaa, 0xbb, 0xcc, 0xdd, // DATA, length 4
		0xff, // dangling, incomplete 8-byte type varint
	}

	bulk := frame.NewDecoder(frame.Options{})
	bulk.Feed(input)
	var bulkFrames []frame.Frame
	for {
		f, ok, err := bulk.Decode()
		if err != nil {
			t.Fatalf("bulk decode error: %v", err)
		}
		if !ok {
			break
		}
		bulkFrames = append(bulkFrames, f)
	}

	incremental := frame.NewDecoder(frame.Options{})
	var incFrames []frame.Frame
	nread := 0
	for i := 0; i < len(input); i++ {
		before := incremental.Pending()
		incremental.Feed(input[i : i+1])
		for {
			f, ok, err := incremental.Decode()
			if err != nil {
				t.Fatalf("incremental decode error: %v", err)
			}
			if !ok {
				break
			}
			incFrames = append(incFrames, f)
		}
		_ = before
		nread++
	}

	if len(bulkFrames) != 2 || len(incFrames) != 2 {
		t.Fatalf("expected 2 frames each, got bulk=%d incremental=%d", len(bulkFrames), len(incFrames))
	}
	if bulkFrames[0].Type() != frame.TypeHeaders || incFrames[0].Type() != frame.TypeHeaders {
		t.Fatalf("first frame type mismatch")
	}
	if bulkFrames[1].Type() != frame.TypeData || incFrames[1].Type() != frame.TypeData {
		t.Fatalf("second frame type mismatch")
	}
	// 19 of the 20 input bytes belong to complete frames; the trailing 0xff
	// is a dangling, incomplete frame-type varint and produces nothing.
	consumed := len(input) - incremental.Pending()
	if consumed != 19 {
		t.Fatalf("consumed = %d, want 19", consumed)
	}
}

func TestReservedTypeRecognition(t *testing.T) {
	for _, tp := range []frame.Type{0x02, 0x06, 0x08, 0x09} {
		if !frame.IsReserved(tp) {
			t.Errorf("IsReserved(%v) = false, want true", tp)
		}
	}
	if frame.IsReserved(frame.TypeData) {
		t.Errorf("IsReserved(DATA) = true, want false")
	}
}

func TestUnknownFrameRoundTrip(t *testing.T) {
	b := []byte{0x21, 0x02, 0xaa, 0xbb} // type=0x21 unknown, length=2
	f, n, ok, err := frame.TryParse(b, frame.Options{})
	if err != nil || !ok {
		t.Fatalf("TryParse failed: ok=%v err=%v", ok, err)
	}
	if n != 4 {
		t.Fatalf("consumed = %d, want 4", n)
	}
	uf, ok := f.(*frame.UnknownFrame)
	if !ok {
		t.Fatalf("got %T, want *UnknownFrame", f)
	}
	out, err := uf.AppendTo(nil)
	if err != nil || !bytes.Equal(out, b) {
		t.Fatalf("round trip failed: % x, err=%v", out, err)
	}
}
