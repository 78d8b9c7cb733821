// Package spec holds the wire constants shared by the server, its clients
// and the frame file tools.
package spec

const (
	// === IDENTITY & VERSIONING ===
	Version      = "1.0.0"
	VersionMajor = 1
	VersionMinor = 0
	ServerName   = "Soundscape-Server"

	// === OPUS FRAME FILE (.opf) ===
	FrameMagic = "SSOPF001"
	FrameExt   = ".opf"
	SampleRate = 48000
	Channels   = 2
	FrameSize  = 20 // ms

	// FrameSamples is the per-channel sample count of one frame.
	FrameSamples = SampleRate * FrameSize / 1000

	// === FRAME FILE TAGS ===
	TagAudio = "ADAT"
	TagInfo  = "INFO"

	// === IPC ===
	DefaultSocket = "/tmp/soundscape.sock"
	EventPrefix   = "EVENT "
	ErrPrefix     = "ERR "
	OKPrefix      = "OK "
)

// Command verbs accepted on the control socket.
const (
	CmdAbout      = "ABOUT"
	CmdPing       = "PING"
	CmdWhoAmI     = "WHOAMI"
	CmdStatus     = "STATUS"
	CmdSong       = "SONG"
	CmdListSongs  = "LIST-SONGS"
	CmdSubscribe  = "SUBSCRIBE"
	CmdLoad       = "LOAD"
	CmdCue        = "CUE"
	CmdPlay       = "PLAY"
	CmdStop       = "STOP"
	CmdTransition = "TRANSITION"
	CmdCancel     = "CANCEL"
)

// Transition modes as written after TRANSITION <bar>.
const (
	ModeNextBar = "NEXT"
	ModeNow     = "NOW"
)

// Error codes returned as "ERR <CODE>".
const (
	CodeSongNotLoaded        = "SONG_NOT_LOADED"
	CodeSongNotPlaying       = "SONG_NOT_PLAYING"
	CodeAlreadyTransitioning = "ALREADY_TRANSITIONING"
	CodeBarOutOfBounds       = "BAR_OUT_OF_BOUNDS"
	CodeInvalidTempo         = "INVALID_TEMPO"
	CodeSongNotFound         = "SONG_NOT_FOUND"
	CodeArg                  = "ARG"
	CodeUnknown              = "UNKNOWN"
	CodeControlLocked        = "CONTROL_LOCKED"
	CodeInternal             = "INTERNAL"
)

// Event types published to subscribers.
const (
	EventBarChanged          = "BAR_CHANGED"
	EventSongLoaded          = "SONG_LOADED"
	EventSongCued            = "SONG_CUED"
	EventPlaying             = "PLAYING"
	EventStopped             = "STOPPED"
	EventTransitionScheduled = "TRANSITION_SCHEDULED"
	EventTransitionStarted   = "TRANSITION_STARTED"
	EventTransitionCompleted = "TRANSITION_COMPLETED"
	EventLoopRestarted       = "LOOP_RESTARTED"
)
