// Package video manages the lifecycle of a karaoke video generation request
// and the reference URL of its result.
package video

import (
	"errors"
	"fmt"

	"github.com/karaokebar/karaoke-web/internal/remote"
)

var (
	ErrRequestInFlight   = errors.New("a video request is already in progress")
	ErrNoResult          = errors.New("no generated video available")
	ErrInvalidTransition = errors.New("invalid state transition")
)

type Phase int

const (
	Idle Phase = iota
	Loading
	Ready
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is the value a page renders from. Transitions never mutate the
// receiver; they return the next state.
//
// URL is set only in Ready. Complete drives the success dialog and is
// cleared by a download or by closing the dialog.
type State struct {
	Phase    Phase
	Request  remote.GenerationRequest
	URL      string
	Complete bool
	Err      error
}

func (s State) Loading() bool {
	return s.Phase == Loading
}

// Start begins a new request. Any previous result is dropped from the
// returned state; the caller owns releasing it.
func (s State) Start(req remote.GenerationRequest) (State, error) {
	if s.Phase == Loading {
		return s, ErrRequestInFlight
	}
	return State{Phase: Loading, Request: req}, nil
}

func (s State) Succeed(url string) (State, error) {
	if s.Phase != Loading {
		return s, fmt.Errorf("%w: succeed from %s", ErrInvalidTransition, s.Phase)
	}
	if url == "" {
		return s, fmt.Errorf("%w: empty result url", ErrInvalidTransition)
	}
	return State{Phase: Ready, Request: s.Request, URL: url, Complete: true}, nil
}

func (s State) Fail(err error) (State, error) {
	if s.Phase != Loading {
		return s, fmt.Errorf("%w: fail from %s", ErrInvalidTransition, s.Phase)
	}
	return State{Phase: Failed, Request: s.Request, Err: err}, nil
}

// Download marks the result as saved. The URL stays valid.
func (s State) Download() (State, error) {
	if s.Phase != Ready || s.URL == "" {
		return s, ErrNoResult
	}
	next := s
	next.Complete = false
	return next, nil
}

// Close dismisses the result dialog and forgets the preview URL.
func (s State) Close() (State, error) {
	if s.Phase == Loading {
		return s, fmt.Errorf("%w: close while loading", ErrInvalidTransition)
	}
	return State{Phase: Idle, Request: s.Request}, nil
}

// Acknowledge returns a failed state to idle once the error has been shown.
func (s State) Acknowledge() State {
	if s.Phase != Failed {
		return s
	}
	return State{Phase: Idle, Request: s.Request}
}
