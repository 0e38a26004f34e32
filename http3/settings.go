package http3

import "github.com/saitolume/h3engine/frame"

// Settings holds the recognized HTTP/3 SETTINGS values this engine cares
// about; zero means "protocol default", which in QPACK's
// case means "dynamic table / blocking disabled".
type Settings struct {
	HeaderTableSize     uint64
	MaxFieldSectionSize uint64
	QPACKBlockedStreams uint64
	NumPlaceholders     uint64
}

// SettingsFramer is a frame generator: it emits exactly one
// SETTINGS frame on its first GenerateFrame call and reports done from
// then on. It only includes values that differ from the protocol default
// (zero), plus NumPlaceholders only when serving a client.
type SettingsFramer struct {
	settings Settings
	isServer bool
	emitted  bool
}

// NewSettingsFramer creates a SettingsFramer for the local settings to
// advertise. isServer controls whether NUM_PLACEHOLDERS is included.
func NewSettingsFramer(settings Settings, isServer bool) *SettingsFramer {
	return &SettingsFramer{settings: settings, isServer: isServer}
}

func (g *SettingsFramer) IsDone() bool { return g.emitted }

func (g *SettingsFramer) GenerateFrame() (frame.Frame, bool) {
	if g.emitted {
		return nil, false
	}
	g.emitted = true
	f := &frame.SettingsFrame{}
	if g.settings.HeaderTableSize != 0 {
		f.Pairs = append(f.Pairs, frame.SettingPair{ID: frame.SettingHeaderTableSize, Value: g.settings.HeaderTableSize})
	}
	if g.settings.MaxFieldSectionSize != 0 {
		f.Pairs = append(f.Pairs, frame.SettingPair{ID: frame.SettingMaxFieldSectionSize, Value: g.settings.MaxFieldSectionSize})
	}
	if g.settings.QPACKBlockedStreams != 0 {
		f.Pairs = append(f.Pairs, frame.SettingPair{ID: frame.SettingQPACKBlockedStreams, Value: g.settings.QPACKBlockedStreams})
	}
	if g.isServer && g.settings.NumPlaceholders != 0 {
		f.Pairs = append(f.Pairs, frame.SettingPair{ID: frame.SettingNumPlaceholders, Value: g.settings.NumPlaceholders})
	}
	return f, true
}

// SettingsHandler is the dispatcher-side counterpart: it hands the values
// of an incoming SETTINGS frame to onSettings. The session's callback
// records them as the peer's parameters and applies HEADER_TABLE_SIZE to
// the QPACK encoder's table; QPACK_BLOCKED_STREAMS is recorded only and is
// not applied to QPACK.
type SettingsHandler struct {
	onSettings func(Settings) *Error
	seen       bool
}

// NewSettingsHandler creates a SettingsHandler that invokes onSettings
// exactly once, with the parsed peer Settings.
func NewSettingsHandler(onSettings func(Settings) *Error) *SettingsHandler {
	return &SettingsHandler{onSettings: onSettings}
}

func (h *SettingsHandler) Interests() []frame.Type { return []frame.Type{frame.TypeSettings} }

func (h *SettingsHandler) HandleFrame(streamID uint64, role StreamRole, seq int, f frame.Frame) *Error {
	sf, ok := f.(*frame.SettingsFrame)
	if !ok {
		return connError(ErrorInternalError, "settings handler invoked with a non-SETTINGS frame")
	}
	if !sf.IsValid() {
		if sf.ParseError == frame.ParseErrorExcessive {
			return connError(ErrorExcessiveLoad, "too many SETTINGS pairs")
		}
		return connError(ErrorSettingsError, "malformed SETTINGS frame")
	}
	if h.seen {
		return connError(ErrorFrameUnexpected, "second SETTINGS frame on control stream")
	}
	h.seen = true
	var s Settings
	s.HeaderTableSize, _ = sf.Get(frame.SettingHeaderTableSize)
	s.MaxFieldSectionSize, _ = sf.Get(frame.SettingMaxFieldSectionSize)
	s.QPACKBlockedStreams, _ = sf.Get(frame.SettingQPACKBlockedStreams)
	s.NumPlaceholders, _ = sf.Get(frame.SettingNumPlaceholders)
	if h.onSettings != nil {
		return h.onSettings(s)
	}
	return nil
}
