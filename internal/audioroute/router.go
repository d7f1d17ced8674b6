// Package audioroute implements the audio routing controller: a
// deterministic state machine that maps device-connection and call-state
// events onto a wanted audio output route, plus the sound registry and
// dedicated audio-routing event loop that drive it.
package audioroute

import (
	"github.com/maniacs-satm/avs/internal/logging"
)

var log = logging.DefaultLogger.WithTag("audioroute")

// Route is an audio output device.
type Route int

const (
	RouteUnknown Route = iota
	RouteEarpiece
	RouteSpeaker
	RouteHeadset
	RouteBluetooth
	RouteLineout
	RouteSPDIF
)

func (r Route) String() string {
	switch r {
	case RouteEarpiece:
		return "earpiece"
	case RouteSpeaker:
		return "speaker"
	case RouteHeadset:
		return "headset"
	case RouteBluetooth:
		return "bluetooth"
	case RouteLineout:
		return "lineout"
	case RouteSPDIF:
		return "spdif"
	default:
		return "unknown"
	}
}

// Event is one of the eight inputs that drive the router's transition
// table.
type Event int

const (
	HeadsetPlugged Event = iota
	HeadsetUnplugged
	BTConnected
	BTDisconnected
	SpeakerEnable
	SpeakerDisable
	CallStart
	CallStop
)

// CallKind distinguishes the two CALL_START variants the transition table
// treats differently.
type CallKind int

const (
	CallAudio CallKind = iota
	CallVideo
)

// State is the router's mutable state: preferLoudspeaker, btConnected,
// wiredHeadsetConnected, currentRoute, and the route saved when a call
// starts. CALL_STOP does not restore the saved route; it always selects
// the earpiece.
type State struct {
	PreferLoudspeaker     bool
	BTConnected           bool
	WiredHeadsetConnected bool
	CurrentRoute          Route
	RouteBeforeCall       Route

	inCall   bool
	callKind CallKind
}

// NewState returns the router's initial state: earpiece, no headset, no
// Bluetooth, no preference for the loudspeaker.
func NewState() State {
	return State{CurrentRoute: RouteEarpiece}
}

// Apply advances the router state machine on event ev (with callKind used
// only for CallStart) and returns the wanted route. It implements the
// transition table verbatim: HEADSET_PLUGGED always wins to headset;
// HEADSET_UNPLUGGED and BT_DISCONNECTED fall back through the remaining
// connected devices in priority order; SPEAKER_ENABLE/DISABLE toggle the
// loudspeaker preference; CALL_START saves the pre-call route and resolves
// the in-call route from device priority; CALL_STOP restores the earpiece
// and clears the preference.
func Apply(s State, ev Event, kind CallKind) (State, Route) {
	switch ev {
	case HeadsetPlugged:
		s.WiredHeadsetConnected = true
		s.PreferLoudspeaker = false
		s.CurrentRoute = RouteHeadset
		return s, RouteHeadset

	case HeadsetUnplugged:
		s.WiredHeadsetConnected = false
		if s.inCall && s.callKind == CallVideo {
			s.PreferLoudspeaker = true
		}
		var w Route
		switch {
		case s.CurrentRoute == RouteSpeaker:
			w = RouteSpeaker
		case s.BTConnected:
			w = RouteBluetooth
		case s.PreferLoudspeaker:
			w = RouteSpeaker
		default:
			w = RouteEarpiece
		}
		s.CurrentRoute = w
		return s, w

	case BTConnected:
		s.BTConnected = true
		if s.inCall {
			s.CurrentRoute = RouteBluetooth
			return s, RouteBluetooth
		}
		return s, s.CurrentRoute

	case BTDisconnected:
		s.BTConnected = false
		var w Route
		switch {
		case s.WiredHeadsetConnected:
			w = RouteHeadset
		case s.PreferLoudspeaker:
			w = RouteSpeaker
		default:
			w = RouteEarpiece
		}
		s.CurrentRoute = w
		return s, w

	case SpeakerEnable:
		s.PreferLoudspeaker = true
		s.CurrentRoute = RouteSpeaker
		return s, RouteSpeaker

	case SpeakerDisable:
		s.PreferLoudspeaker = false
		var w Route
		switch {
		case s.WiredHeadsetConnected:
			w = RouteHeadset
		case s.BTConnected:
			w = RouteBluetooth
		default:
			w = RouteEarpiece
		}
		s.CurrentRoute = w
		return s, w

	case CallStart:
		s.RouteBeforeCall = s.CurrentRoute
		s.inCall = true
		s.callKind = kind
		if kind == CallVideo {
			s.PreferLoudspeaker = false
		}
		w := callStartRoute(s, kind)
		s.CurrentRoute = w
		return s, w

	case CallStop:
		s.inCall = false
		s.PreferLoudspeaker = false
		s.CurrentRoute = RouteEarpiece
		return s, RouteEarpiece

	default:
		return s, s.CurrentRoute
	}
}

// callStartRoute resolves the in-call route by device priority:
// headset, then Bluetooth, then speaker (if preferred), then earpiece.
// Video calls additionally prefer the loudspeaker when neither a headset
// nor Bluetooth device is present, matching the spec's "video policy"
// note; the source's double assignment of prefer_loudspeaker in this path
// is resolved to its final value (false) per the spec's Open Questions.
func callStartRoute(s State, kind CallKind) Route {
	switch {
	case s.WiredHeadsetConnected:
		return RouteHeadset
	case s.BTConnected:
		return RouteBluetooth
	case kind == CallVideo:
		return RouteSpeaker
	case s.PreferLoudspeaker:
		return RouteSpeaker
	default:
		return RouteEarpiece
	}
}
