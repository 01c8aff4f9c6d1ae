package session

// PreconditionError is a rejected state transition. Its text is safe to show
// to the invoking user.
type PreconditionError struct {
	msg string
}

func (e *PreconditionError) Error() string { return e.msg }

var (
	ErrNotInVoice       = &PreconditionError{"You must be in a voice channel!"}
	ErrAlreadyRecording = &PreconditionError{"Already recording."}
	ErrBusy             = &PreconditionError{"Still processing the last recording, try again shortly."}
	ErrNotRecording     = &PreconditionError{"Not currently recording."}
	ErrNotConnected     = &PreconditionError{"I am not in a voice channel."}
)
