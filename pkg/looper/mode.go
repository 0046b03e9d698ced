package looper

// Mode is the recorder state.
type Mode int32

const (
	Stopped Mode = iota
	PlayingBack
	RecordingInitial  // first pass: live input straight to the record slot
	RecordingPlayback // loop plays and is copied to the other slot
	RecordingOverdub  // loop plays and live input is mixed into the copy
)

// String returns the string representation of the mode
func (m Mode) String() string {
	switch m {
	case Stopped:
		return "Stopped"
	case PlayingBack:
		return "PlayingBack"
	case RecordingInitial:
		return "RecordingInitial"
	case RecordingPlayback:
		return "RecordingPlayback"
	case RecordingOverdub:
		return "RecordingOverdub"
	default:
		return "Unknown"
	}
}

// IsRecording reports whether the mode writes to the record slot.
func (m Mode) IsRecording() bool {
	return m == RecordingInitial || m == RecordingPlayback || m == RecordingOverdub
}

// IsPlaying reports whether the mode reads from the play slot.
func (m Mode) IsPlaying() bool {
	return m == PlayingBack || m == RecordingPlayback || m == RecordingOverdub
}
