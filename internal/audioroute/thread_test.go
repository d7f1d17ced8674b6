package audioroute

import (
	"sync"
	"testing"
	"time"
)

type fakePlatform struct {
	mu       sync.Mutex
	inited   bool
	closed   bool
	observed Route
}

func newFakePlatform() *fakePlatform { return &fakePlatform{observed: RouteEarpiece} }

func (p *fakePlatform) Init() error { p.mu.Lock(); defer p.mu.Unlock(); p.inited = true; return nil }
func (p *fakePlatform) Close() error { p.mu.Lock(); defer p.mu.Unlock(); p.closed = true; return nil }
func (p *fakePlatform) EnableRoute(r Route) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observed = r
	return nil
}
func (p *fakePlatform) ObservedRoute() Route {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.observed
}

func startThread(t *testing.T, onRoute func(Route)) (*Thread, *fakePlatform) {
	t.Helper()
	platform := newFakePlatform()
	th := NewThread(platform, onRoute)
	th.Start()
	select {
	case <-th.Started():
	case <-time.After(time.Second):
		t.Fatal("thread did not signal started")
	}
	return th, platform
}

func TestThreadProcessesMessagesInOrderAndExits(t *testing.T) {
	var routes []Route
	var mu sync.Mutex
	th, platform := startThread(t, func(r Route) {
		mu.Lock()
		routes = append(routes, r)
		mu.Unlock()
	})

	th.Post(HeadsetConnectedMessage(true))
	callStateOn := CallStateMessage(true, CallAudio)
	th.Post(callStateOn)
	th.Post(HeadsetConnectedMessage(false))
	th.Post(ExitMessage())

	select {
	case <-th.Done():
	case <-time.After(time.Second):
		t.Fatal("thread did not exit after EXIT message")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(routes) != 3 {
		t.Fatalf("routes = %v, want 3 route-change callbacks", routes)
	}
	if routes[0] != RouteHeadset || routes[1] != RouteHeadset || routes[2] != RouteEarpiece {
		t.Fatalf("routes = %v, want [headset headset earpiece]", routes)
	}
	if platform.ObservedRoute() != RouteEarpiece {
		t.Fatalf("platform observed = %s, want earpiece", platform.ObservedRoute())
	}
	if !platform.closed {
		t.Fatal("platform.Close was not called on exit")
	}
}

func TestThreadRegisterPlaySound(t *testing.T) {
	th, _ := startThread(t, nil)

	entry, err := RegisterMediaMessage(SoundEntry{Name: "ping", Priority: 1})
	if err != nil {
		t.Fatalf("RegisterMediaMessage: %s", err)
	}
	th.Post(entry)

	play, err := PlayMessage("ping")
	if err != nil {
		t.Fatalf("PlayMessage: %s", err)
	}
	th.Post(play)
	th.Post(ExitMessage())

	select {
	case <-th.Done():
	case <-time.After(time.Second):
		t.Fatal("thread did not exit")
	}

	if th.RegistrySize() != 1 {
		t.Fatalf("registry size = %d, want 1", th.RegistrySize())
	}
}
