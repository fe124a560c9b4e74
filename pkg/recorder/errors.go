package recorder

import (
	"errors"
)

var (
	ErrNotRecording    = errors.New("the session is not recording")
	ErrAlreadyStarted  = errors.New("the session is already started")
	ErrAlreadyStopped  = errors.New("the session is already stopped")
	ErrAudioNotEnabled = errors.New("the session is configured without audio")
)
