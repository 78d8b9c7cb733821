package player

import (
	"github.com/pkg/errors"

	"soundscape/internal/catalog"
	"soundscape/internal/deck"
	"soundscape/pkg/spec"
)

// Caller mistakes. None of them change session state.
var (
	ErrSongNotLoaded        = errors.New("no song loaded")
	ErrSongNotPlaying       = errors.New("no song playing")
	ErrAlreadyTransitioning = errors.New("already transitioning")
	ErrBarOutOfBounds       = errors.New("bar out of bounds")
	ErrInvalidTempo         = deck.ErrInvalidTempo
	ErrSongNotFound         = catalog.ErrNotFound
)

// Code maps err to the wire code the control socket answers with.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSongNotLoaded):
		return spec.CodeSongNotLoaded
	case errors.Is(err, ErrSongNotPlaying):
		return spec.CodeSongNotPlaying
	case errors.Is(err, ErrAlreadyTransitioning):
		return spec.CodeAlreadyTransitioning
	case errors.Is(err, ErrBarOutOfBounds):
		return spec.CodeBarOutOfBounds
	case errors.Is(err, ErrInvalidTempo):
		return spec.CodeInvalidTempo
	case errors.Is(err, ErrSongNotFound):
		return spec.CodeSongNotFound
	default:
		return spec.CodeInternal
	}
}
