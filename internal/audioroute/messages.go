package audioroute

import "fmt"

// MessageKind tags the payload carried by a Message.
type MessageKind int

const (
	MsgPlay MessageKind = iota
	MsgPause
	MsgStop
	MsgCallState
	MsgEnableSpeaker
	MsgHeadsetConnected
	MsgBTConnected
	MsgRegisterMedia
	MsgDeregisterMedia
	MsgSetIntensity
	MsgExit
)

// Message is the single tagged type posted to the audio-routing thread's
// queue. Name strings are copied into a fixed-size array (bounded to
// maxSoundNameLen bytes) rather than referenced, so the message owns its
// data independently of the sender's stack.
type Message struct {
	Kind MessageKind

	name    [maxSoundNameLen]byte
	nameLen int

	Bool  bool     // ENABLE_SPEAKER, HEADSET_CONNECTED, BT_CONNECTED, CALL_STATE (in-call)
	Int   int      // SET_INTENSITY sound mode (a SoundMode value)
	Call  CallKind // CALL_STATE call kind
	Entry SoundEntry
}

// Name returns the copied name string.
func (m Message) Name() string { return string(m.name[:m.nameLen]) }

func newNamedMessage(kind MessageKind, name string) (Message, error) {
	if len(name) > maxSoundNameLen {
		return Message{}, fmt.Errorf("audioroute: name %q exceeds %d bytes", name, maxSoundNameLen)
	}
	var msg Message
	msg.Kind = kind
	msg.nameLen = copy(msg.name[:], name)
	return msg, nil
}

// PlayMessage builds a PLAY message for the named sound.
func PlayMessage(name string) (Message, error) { return newNamedMessage(MsgPlay, name) }

// PauseMessage builds a PAUSE message for the named sound.
func PauseMessage(name string) (Message, error) { return newNamedMessage(MsgPause, name) }

// StopMessage builds a STOP message for the named sound.
func StopMessage(name string) (Message, error) { return newNamedMessage(MsgStop, name) }

// CallStateMessage builds a CALL_STATE message: inCall plus, when starting,
// the call kind (audio/video).
func CallStateMessage(inCall bool, kind CallKind) Message {
	return Message{Kind: MsgCallState, Bool: inCall, Call: kind}
}

// EnableSpeakerMessage builds an ENABLE_SPEAKER/SPEAKER_DISABLE message.
func EnableSpeakerMessage(enable bool) Message {
	return Message{Kind: MsgEnableSpeaker, Bool: enable}
}

// HeadsetConnectedMessage builds a HEADSET_PLUGGED/HEADSET_UNPLUGGED
// message.
func HeadsetConnectedMessage(connected bool) Message {
	return Message{Kind: MsgHeadsetConnected, Bool: connected}
}

// BTConnectedMessage builds a BT_CONNECTED/BT_DISCONNECTED message.
func BTConnectedMessage(connected bool) Message {
	return Message{Kind: MsgBTConnected, Bool: connected}
}

// RegisterMediaMessage builds a REGISTER_MEDIA message.
func RegisterMediaMessage(e SoundEntry) (Message, error) {
	if len(e.Name) > maxSoundNameLen {
		return Message{}, fmt.Errorf("audioroute: name %q exceeds %d bytes", e.Name, maxSoundNameLen)
	}
	msg := Message{Kind: MsgRegisterMedia, Entry: e}
	msg.nameLen = copy(msg.name[:], e.Name)
	return msg, nil
}

// DeregisterMediaMessage builds a DEREGISTER_MEDIA message.
func DeregisterMediaMessage(name string) (Message, error) {
	return newNamedMessage(MsgDeregisterMedia, name)
}

// SetIntensityMessage builds a SET_INTENSITY message.
func SetIntensityMessage(mode SoundMode) Message {
	return Message{Kind: MsgSetIntensity, Int: int(mode)}
}

// ExitMessage builds the EXIT message that drains and terminates the loop.
func ExitMessage() Message { return Message{Kind: MsgExit} }
