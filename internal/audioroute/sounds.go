package audioroute

import "fmt"

// SoundMode maps to the intensity threshold used by set_sound_mode: ALL
// plays everything, SOME plays only low-intensity sounds, NONE plays
// nothing.
type SoundMode int

const (
	ModeNone SoundMode = iota
	ModeSome
	ModeAll
)

// thresholdFor maps a SoundMode to the intensity ceiling a sound's
// intensity must not exceed to be played.
func thresholdFor(mode SoundMode) int {
	switch mode {
	case ModeNone:
		return -1
	case ModeSome:
		return 0
	default:
		return maxIntensity
	}
}

const maxIntensity = 1<<31 - 1

// maxSoundNameLen bounds the name copied into cross-thread messages, per
// the spec's fixed-size message design note.
const maxSoundNameLen = 128

// SoundEntry is one registered sound clip.
type SoundEntry struct {
	Name        string
	Object      interface{} // opaque platform handle
	Mixing      bool        // may play concurrently with other mixing sounds
	PlayableInCall bool
	IsCallMedia bool
	Priority    int // >0 preempts and stops all other sounds on play
	Intensity   int // filtered against the current threshold

	playing bool
}

// SoundRegistry is the name -> SoundEntry mapping; it is owned exclusively
// by the audio-routing thread.
type SoundRegistry struct {
	entries map[string]*SoundEntry
	mode    SoundMode
}

// NewSoundRegistry returns an empty registry with sound mode ALL.
func NewSoundRegistry() *SoundRegistry {
	return &SoundRegistry{entries: make(map[string]*SoundEntry), mode: ModeAll}
}

// Register adds or replaces a sound entry by name.
func (r *SoundRegistry) Register(e SoundEntry) error {
	if len(e.Name) == 0 {
		return fmt.Errorf("audioroute: sound name must not be empty")
	}
	if len(e.Name) > maxSoundNameLen {
		return fmt.Errorf("audioroute: sound name %q exceeds %d bytes", e.Name, maxSoundNameLen)
	}
	r.entries[e.Name] = &e
	return nil
}

// Unregister removes a sound entry. Unregistering an unknown name is a
// no-op.
func (r *SoundRegistry) Unregister(name string) {
	delete(r.entries, name)
}

// Len reports the number of registered sounds.
func (r *SoundRegistry) Len() int { return len(r.entries) }

// SetMode changes the global intensity threshold used by Play.
func (r *SoundRegistry) SetMode(mode SoundMode) { r.mode = mode }

// Play starts the named sound if its intensity passes the current
// threshold. A sound with priority>0 preempts (stops) every other
// currently-playing sound first. A sound is itself blocked from
// starting when a currently-playing entry outranks it: any playing
// priority>0 entry, or any playing entry when either that entry or the
// new sound is non-mixing. A blocked sound still reports
// success (it registered the request) but does not start playing.
// Returns false if the sound does not exist or was filtered by
// intensity.
func (r *SoundRegistry) Play(name string) bool {
	e, ok := r.entries[name]
	if !ok {
		return false
	}
	if e.Intensity > thresholdFor(r.mode) {
		return false
	}
	if e.Priority > 0 {
		for other, oe := range r.entries {
			if other != name {
				oe.playing = false
			}
		}
		e.playing = true
		return true
	}
	for other, oe := range r.entries {
		if other == name || !oe.playing {
			continue
		}
		if oe.Priority > 0 || !oe.Mixing || !e.Mixing {
			return true
		}
	}
	e.playing = true
	return true
}

// Pause marks the named sound paused; a no-op if not registered.
func (r *SoundRegistry) Pause(name string) {
	if e, ok := r.entries[name]; ok {
		e.playing = false
	}
}

// Stop stops the named sound; a no-op if not registered.
func (r *SoundRegistry) Stop(name string) {
	if e, ok := r.entries[name]; ok {
		e.playing = false
	}
}

// IsPlaying reports whether the named sound is currently playing.
func (r *SoundRegistry) IsPlaying(name string) bool {
	e, ok := r.entries[name]
	return ok && e.playing
}
