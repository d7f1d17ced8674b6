package audioroute

import "testing"

func TestPriorityPreemptsOtherSounds(t *testing.T) {
	r := NewSoundRegistry()
	mustRegister(t, r, SoundEntry{Name: "ringtone", Priority: 1})
	mustRegister(t, r, SoundEntry{Name: "notif", Priority: 0, Mixing: true})

	if !r.Play("ringtone") {
		t.Fatal("ringtone should have played")
	}
	if !r.Play("notif") {
		t.Fatal("notif registration should succeed even though preempted")
	}
	if r.IsPlaying("notif") {
		t.Fatal("notif should have been preempted and not be playing")
	}
	if !r.IsPlaying("ringtone") {
		t.Fatal("ringtone should still be playing")
	}

	r.Stop("ringtone")
	if r.IsPlaying("ringtone") {
		t.Fatal("ringtone should be stopped")
	}
	if !r.Play("notif") {
		t.Fatal("notif should play once ringtone is stopped")
	}
	if !r.IsPlaying("notif") {
		t.Fatal("notif should be playing")
	}
}

func TestIntensityFiltering(t *testing.T) {
	r := NewSoundRegistry()
	mustRegister(t, r, SoundEntry{Name: "beep", Intensity: 1})

	r.SetMode(ModeNone)
	if r.Play("beep") {
		t.Fatal("beep should not play under ModeNone")
	}

	r.SetMode(ModeAll)
	if !r.Play("beep") {
		t.Fatal("beep should play under ModeAll")
	}
}

func TestRegisterUnregisterRoundTrip(t *testing.T) {
	r := NewSoundRegistry()
	before := r.Len()
	mustRegister(t, r, SoundEntry{Name: "click"})
	if r.Len() != before+1 {
		t.Fatalf("len = %d, want %d", r.Len(), before+1)
	}
	r.Unregister("click")
	if r.Len() != before {
		t.Fatalf("len = %d, want %d after unregister", r.Len(), before)
	}
}

func TestRegisterRejectsOversizeName(t *testing.T) {
	r := NewSoundRegistry()
	name := make([]byte, maxSoundNameLen+1)
	for i := range name {
		name[i] = 'a'
	}
	if err := r.Register(SoundEntry{Name: string(name)}); err == nil {
		t.Fatal("expected error for oversize sound name")
	}
}

func mustRegister(t *testing.T, r *SoundRegistry, e SoundEntry) {
	t.Helper()
	if err := r.Register(e); err != nil {
		t.Fatalf("Register(%q): %s", e.Name, err)
	}
}
