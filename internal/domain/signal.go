package domain

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v3"
)

type SignalType string

const (
	SignalTypeOffer     SignalType = "offer"
	SignalTypeAnswer    SignalType = "answer"
	SignalTypePranswer  SignalType = "pranswer"
	SignalTypeRollback  SignalType = "rollback"
	SignalTypeCandidate SignalType = "candidate"
)

var (
	ErrInvalidSignalType = errors.New("unknown signal type")
	ErrEmptySignalBody   = errors.New("signal must carry an sdp or a candidate")
)

// SessionDescription is the wire form of a WebRTC session description.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Validate checks that the description is well formed and, when expected is
// non-empty, that its type matches exactly.
func (d SessionDescription) Validate(expected string) error {
	if expected != "" && d.Type != expected {
		return fmt.Errorf("must have type %q", expected)
	}
	switch d.Type {
	case "offer", "answer", "pranswer", "rollback":
	default:
		return fmt.Errorf("unsupported sdp type %q", d.Type)
	}
	if d.Type != "rollback" && d.SDP == "" {
		return errors.New("sdp body is required")
	}
	return nil
}

// ToPion converts the description to the pion type.
func (d SessionDescription) ToPion() (webrtc.SessionDescription, error) {
	t := webrtc.NewSDPType(d.Type)
	if t == webrtc.SDPType(webrtc.Unknown) {
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", d.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: d.SDP}, nil
}

// DescriptionFromPion converts a pion session description to the wire form.
func DescriptionFromPion(desc webrtc.SessionDescription) SessionDescription {
	return SessionDescription{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	}
}

// Signal is the polymorphic negotiation payload routed between two peers:
// a session description (offer, answer, pranswer, rollback) or an ICE
// candidate, discriminated by Type.
type Signal struct {
	Type      SignalType               `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// Validate checks the tag and the body matching it.
func (s Signal) Validate() error {
	switch s.Type {
	case SignalTypeOffer, SignalTypeAnswer, SignalTypePranswer:
		if s.SDP == "" && s.Candidate == nil {
			return ErrEmptySignalBody
		}
	case SignalTypeRollback:
	case SignalTypeCandidate:
		if s.Candidate == nil {
			return ErrEmptySignalBody
		}
	default:
		return ErrInvalidSignalType
	}
	return nil
}

// Description returns the SDP part of the signal, if it carries one.
func (s Signal) Description() (SessionDescription, bool) {
	switch s.Type {
	case SignalTypeOffer, SignalTypeAnswer, SignalTypePranswer, SignalTypeRollback:
		return SessionDescription{Type: string(s.Type), SDP: s.SDP}, true
	}
	return SessionDescription{}, false
}
