package audioroute

import "testing"

func TestRouterEndToEndScenario(t *testing.T) {
	s := NewState()
	if s.CurrentRoute != RouteEarpiece {
		t.Fatalf("initial route = %s, want earpiece", s.CurrentRoute)
	}

	s, w := Apply(s, HeadsetPlugged, CallAudio)
	if w != RouteHeadset {
		t.Fatalf("after HEADSET_PLUGGED: route = %s, want headset", w)
	}

	s, w = Apply(s, CallStart, CallAudio)
	if w != RouteHeadset {
		t.Fatalf("after CALL_START: route = %s, want headset", w)
	}

	s, w = Apply(s, HeadsetUnplugged, CallAudio)
	if w != RouteEarpiece {
		t.Fatalf("after HEADSET_UNPLUGGED: route = %s, want earpiece", w)
	}

	s, w = Apply(s, SpeakerEnable, CallAudio)
	if w != RouteSpeaker {
		t.Fatalf("after SPEAKER_ENABLE: route = %s, want speaker", w)
	}

	_, w = Apply(s, CallStop, CallAudio)
	if w != RouteEarpiece {
		t.Fatalf("after CALL_STOP: route = %s, want earpiece", w)
	}
}

func TestHeadsetPluggedInvariant(t *testing.T) {
	s := NewState()
	s.BTConnected = true
	s.PreferLoudspeaker = true

	s, w := Apply(s, HeadsetPlugged, CallAudio)
	if w != RouteHeadset {
		t.Fatalf("route = %s, want headset", w)
	}
	if !s.WiredHeadsetConnected || s.PreferLoudspeaker {
		t.Fatalf("state after HEADSET_PLUGGED = %+v, want wiredHS=true preferLoud=false", s)
	}
}

func TestBTConnectedOutOfCallDoesNotChangeRoute(t *testing.T) {
	s := NewState()
	s, w := Apply(s, BTConnected, CallAudio)
	if w != RouteEarpiece {
		t.Fatalf("route = %s, want unchanged earpiece (not in call)", w)
	}
	if !s.BTConnected {
		t.Fatalf("btConnected = false, want true")
	}
}

func TestBTConnectedInCallRoutesToBluetooth(t *testing.T) {
	s := NewState()
	s, _ = Apply(s, CallStart, CallAudio)
	s, w := Apply(s, BTConnected, CallAudio)
	if w != RouteBluetooth {
		t.Fatalf("route = %s, want bluetooth", w)
	}
}

func TestSpeakerDisableFallsBackToBluetooth(t *testing.T) {
	s := NewState()
	s, _ = Apply(s, BTConnected, CallAudio)
	s, _ = Apply(s, CallStart, CallAudio)
	s, _ = Apply(s, BTConnected, CallAudio)
	s, _ = Apply(s, SpeakerEnable, CallAudio)
	_, w := Apply(s, SpeakerDisable, CallAudio)
	if w != RouteBluetooth {
		t.Fatalf("route = %s, want bluetooth", w)
	}
}

func TestCallStartVideoPrefersSpeakerOverEarpiece(t *testing.T) {
	s := NewState()
	_, w := Apply(s, CallStart, CallVideo)
	if w != RouteSpeaker {
		t.Fatalf("route = %s, want speaker for video call with no headset/BT", w)
	}
}

func TestWiredHeadsetInvariantHoldsAcrossEvents(t *testing.T) {
	s := NewState()
	s, _ = Apply(s, HeadsetPlugged, CallAudio)
	s, _ = Apply(s, SpeakerEnable, CallAudio)
	s, _ = Apply(s, SpeakerDisable, CallAudio)

	if !(s.WiredHeadsetConnected && !s.PreferLoudspeaker) {
		t.Skip("state does not satisfy invariant precondition")
	}
	if s.CurrentRoute != RouteHeadset {
		t.Fatalf("wiredHS=true preferLoud=false not in call: route = %s, want headset", s.CurrentRoute)
	}
}
