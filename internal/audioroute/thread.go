package audioroute

// PlatformAudio is the process-wide platform audio-device singleton. Its
// lifecycle is owned explicitly by the audio-routing thread: Init before
// the first EnableRoute call, Close once the thread exits.
type PlatformAudio interface {
	Init() error
	EnableRoute(Route) error
	ObservedRoute() Route
	Close() error
}

// Thread is the dedicated single-threaded event loop for the audio routing
// controller and platform audio-device interaction. All router state and
// the sound registry are owned exclusively by the goroutine running Start;
// every other interaction happens by posting a Message to the queue.
type Thread struct {
	queue chan Message

	startedCh chan struct{}
	doneCh    chan struct{}

	platform       PlatformAudio
	onRouteChanged func(Route)

	registry *SoundRegistry
	router   State
}

// NewThread constructs a Thread. platform is entered via Init when the
// loop starts and left via Close when it exits. onRouteChanged, if
// non-nil, is invoked on the audio thread itself with the wanted route
// after every routing event, whether or not the route changed; with a
// nil platform it is not invoked.
func NewThread(platform PlatformAudio, onRouteChanged func(Route)) *Thread {
	return &Thread{
		queue:          make(chan Message, 64),
		startedCh:      make(chan struct{}),
		doneCh:         make(chan struct{}),
		platform:       platform,
		onRouteChanged: onRouteChanged,
		registry:       NewSoundRegistry(),
		router:         NewState(),
	}
}

// Start launches the event loop goroutine. It returns immediately; callers
// must wait on Started before posting messages.
func (t *Thread) Start() {
	go t.run()
}

// Started is closed once the loop has signalled it is ready to service
// messages. Callers must not call Post before this channel is closed.
func (t *Thread) Started() <-chan struct{} { return t.startedCh }

// Done is closed once the loop has drained its queue after an EXIT
// message and returned.
func (t *Thread) Done() <-chan struct{} { return t.doneCh }

// Post enqueues a message. Messages from a single caller goroutine are
// delivered in FIFO order relative to each other; no ordering is
// guaranteed across distinct callers. Post blocks if the queue is full,
// providing natural backpressure instead of an unbounded buffer.
func (t *Thread) Post(msg Message) {
	t.queue <- msg
}

func (t *Thread) run() {
	if t.platform != nil {
		if err := t.platform.Init(); err != nil {
			log.Warn("audioroute: platform init failed: %s", err)
		}
	}
	close(t.startedCh)
	defer close(t.doneCh)
	defer func() {
		if t.platform != nil {
			if err := t.platform.Close(); err != nil {
				log.Warn("audioroute: platform close failed: %s", err)
			}
		}
	}()

	for msg := range t.queue {
		if t.handle(msg) {
			return
		}
	}
}

// handle processes one message and reports whether the loop should exit.
func (t *Thread) handle(msg Message) (exit bool) {
	switch msg.Kind {
	case MsgPlay:
		t.registry.Play(msg.Name())
	case MsgPause:
		t.registry.Pause(msg.Name())
	case MsgStop:
		t.registry.Stop(msg.Name())
	case MsgRegisterMedia:
		if err := t.registry.Register(msg.Entry); err != nil {
			log.Warn("audioroute: %s", err)
		}
	case MsgDeregisterMedia:
		t.registry.Unregister(msg.Name())
	case MsgSetIntensity:
		t.registry.SetMode(SoundMode(msg.Int))

	case MsgCallState:
		ev := CallStop
		if msg.Bool {
			ev = CallStart
		}
		t.applyEvent(ev, msg.Call)

	case MsgEnableSpeaker:
		ev := SpeakerDisable
		if msg.Bool {
			ev = SpeakerEnable
		}
		t.applyEvent(ev, CallAudio)

	case MsgHeadsetConnected:
		ev := HeadsetUnplugged
		if msg.Bool {
			ev = HeadsetPlugged
		}
		t.applyEvent(ev, CallAudio)

	case MsgBTConnected:
		ev := BTDisconnected
		if msg.Bool {
			ev = BTConnected
		}
		t.applyEvent(ev, CallAudio)

	case MsgExit:
		return true
	}
	return false
}

func (t *Thread) applyEvent(ev Event, kind CallKind) {
	newState, wanted := Apply(t.router, ev, kind)
	t.router = newState

	if t.platform == nil {
		return
	}
	if err := t.platform.EnableRoute(wanted); err != nil {
		log.Warn("audioroute: enabling route %s failed: %s", wanted, err)
	}
	if observed := t.platform.ObservedRoute(); observed != wanted && t.router.inCall {
		log.Warn("audioroute: observed route %s differs from wanted %s during call", observed, wanted)
	}
	if t.onRouteChanged != nil {
		t.onRouteChanged(wanted)
	}
}

// CurrentRoute returns the router's current route. Safe to call only
// after Done is closed, or from within onRouteChanged on the audio
// thread itself; the router is otherwise owned exclusively by the
// running loop.
func (t *Thread) CurrentRoute() Route { return t.router.CurrentRoute }

// RegistrySize returns the sound registry's size. Same safety rules as
// CurrentRoute.
func (t *Thread) RegistrySize() int { return t.registry.Len() }
