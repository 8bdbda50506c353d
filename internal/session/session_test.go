package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/neewerctl/internal/ble"
	"github.com/dokzlo13/neewerctl/internal/light"
	"github.com/dokzlo13/neewerctl/internal/protocol"
)

type fakeHandle struct {
	mu           sync.Mutex
	writes       [][]byte
	failWrites   int // fail this many writes before succeeding
	disconnected bool
	notifyFn     func([]byte)
	respond      func(query []byte, notify func([]byte))
}

func (h *fakeHandle) Write(_ context.Context, data []byte, _ bool) error {
	h.mu.Lock()
	fail := h.failWrites > 0
	if fail {
		h.failWrites--
	} else {
		h.writes = append(h.writes, append([]byte(nil), data...))
	}
	respond := h.respond
	notifyFn := h.notifyFn
	h.mu.Unlock()
	if fail {
		return errors.New("gatt write failed")
	}
	if respond != nil && notifyFn != nil {
		go respond(data, notifyFn)
	}
	return nil
}

func (h *fakeHandle) Subscribe(fn func([]byte)) error {
	h.mu.Lock()
	h.notifyFn = fn
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) Disconnect() error {
	h.mu.Lock()
	h.disconnected = true
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) writeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.writes)
}

type fakeTransport struct {
	mu           sync.Mutex
	handles      map[string]*fakeHandle
	failConnects map[string]int // per-MAC connect failures before success
	connects     map[string]int
	inFlight     int
	maxInFlight  int
	connectDelay time.Duration
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handles:      map[string]*fakeHandle{},
		failConnects: map[string]int{},
		connects:     map[string]int{},
	}
}

func (t *fakeTransport) Scan(context.Context, time.Duration) ([]ble.Advertisement, error) {
	return nil, nil
}

func (t *fakeTransport) Connect(ctx context.Context, mac string, _ time.Duration) (ble.Handle, error) {
	t.mu.Lock()
	t.connects[mac]++
	t.inFlight++
	if t.inFlight > t.maxInFlight {
		t.maxInFlight = t.inFlight
	}
	delay := t.connectDelay
	fail := t.failConnects[mac] > 0
	if fail {
		t.failConnects[mac]--
	}
	t.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	t.mu.Lock()
	t.inFlight--
	h, ok := t.handles[mac]
	if !ok {
		h = &fakeHandle{}
		t.handles[mac] = h
	}
	t.mu.Unlock()

	if fail {
		return nil, errors.New("connect refused")
	}
	return h, nil
}

func testLight(mac, name string) *light.Descriptor {
	return &light.Descriptor{MAC: mac, Name: name, Variant: light.VariantClassic, TempMin: 32, TempMax: 56}
}

func testPackets() []protocol.Packet {
	return []protocol.Packet{{Data: []byte{120, 129, 1, 1, 251}, WithResponse: true}}
}

func fastConfig() Config {
	return Config{
		ConnectTimeout: time.Second,
		ConnectRetries: 2,
		WriteRetries:   2,
		Passes:         2,
		Parallel:       2,
		StatusTimeout:  200 * time.Millisecond,
	}
}

func TestSessionConnectRetries(t *testing.T) {
	tr := newFakeTransport()
	tr.failConnects["AA:BB:CC:DD:EE:01"] = 1

	s := New(tr, testLight("AA:BB:CC:DD:EE:01", "SL90"), fastConfig())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() = %v, want recovery on second attempt", err)
	}
	if got := tr.connects["AA:BB:CC:DD:EE:01"]; got != 2 {
		t.Errorf("connect attempts = %d, want 2", got)
	}
	if s.State() != StateConnected {
		t.Errorf("state = %s, want %s", s.State(), StateConnected)
	}
	s.Disconnect()
	if s.State() != StateIdle {
		t.Errorf("state after disconnect = %s, want %s", s.State(), StateIdle)
	}
}

func TestSessionConnectExhausted(t *testing.T) {
	tr := newFakeTransport()
	tr.failConnects["AA:BB:CC:DD:EE:02"] = 5

	s := New(tr, testLight("AA:BB:CC:DD:EE:02", "SL90"), fastConfig())
	err := s.Connect(context.Background())
	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("Connect() = %v, want *ConnectError", err)
	}
	if connErr.Attempts != 2 {
		t.Errorf("ConnectError.Attempts = %d, want 2", connErr.Attempts)
	}
	if s.Connected() {
		t.Error("session connected after exhausted retries")
	}
}

func TestSessionSendRequiresConnection(t *testing.T) {
	s := New(newFakeTransport(), testLight("AA:BB:CC:DD:EE:03", ""), fastConfig())
	if err := s.Send(context.Background(), testPackets()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send() = %v, want ErrNotConnected", err)
	}
}

func TestSessionWriteRetryRecovers(t *testing.T) {
	tr := newFakeTransport()
	mac := "AA:BB:CC:DD:EE:04"
	tr.handles[mac] = &fakeHandle{failWrites: 1}

	s := New(tr, testLight(mac, "RGB660"), fastConfig())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Send(context.Background(), testPackets()); err != nil {
		t.Fatalf("Send() = %v, want recovery on retry", err)
	}
	if got := tr.handles[mac].writeCount(); got != 1 {
		t.Errorf("delivered writes = %d, want 1", got)
	}
}

func TestSessionSendStopsAtFirstFailedPacket(t *testing.T) {
	tr := newFakeTransport()
	mac := "AA:BB:CC:DD:EE:05"
	tr.handles[mac] = &fakeHandle{failWrites: 10}

	s := New(tr, testLight(mac, "SL90"), fastConfig())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	packets := []protocol.Packet{
		{Data: []byte{120, 130, 1, 50, 45}},
		{Data: []byte{120, 131, 1, 56, 52}},
	}
	err := s.Send(context.Background(), packets)
	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("Send() = %v, want *WriteError", err)
	}
	if writeErr.Packet != 0 {
		t.Errorf("failed packet index = %d, want 0", writeErr.Packet)
	}
	if got := tr.handles[mac].writeCount(); got != 0 {
		t.Errorf("delivered writes = %d, want 0 (no partial sequence)", got)
	}
	if !s.Connected() {
		t.Error("connection dropped after write failure; should stay open for the next pass")
	}
}

func TestRunnerRetriesOnlyFailedLights(t *testing.T) {
	tr := newFakeTransport()
	macGood := "AA:BB:CC:DD:EE:10"
	macBad := "AA:BB:CC:DD:EE:11"
	tr.failConnects[macBad] = 10 // fails every pass

	cfg := fastConfig()
	targets := []*Target{
		{Session: New(tr, testLight(macGood, "SL90"), cfg), Packets: testPackets()},
		{Session: New(tr, testLight(macBad, "SL90 Pro"), cfg), Packets: testPackets()},
	}
	results := NewRunner(cfg).Send(context.Background(), targets, false)

	byMAC := map[string]Result{}
	for _, r := range results {
		byMAC[r.MAC] = r
	}
	good := byMAC[macGood]
	if good.Outcome != OutcomeSuccess {
		t.Fatalf("%s outcome = %s, want success: %v", macGood, good.Outcome, good.Err)
	}
	if good.PassesUsed != 1 {
		t.Errorf("%s passes = %d, want 1 (must not be retried)", macGood, good.PassesUsed)
	}
	if tr.connects[macGood] != 1 {
		t.Errorf("%s connects = %d, want 1", macGood, tr.connects[macGood])
	}

	bad := byMAC[macBad]
	if bad.Outcome != OutcomeFailed {
		t.Fatalf("%s outcome = %s, want failed", macBad, bad.Outcome)
	}
	if bad.PassesUsed != cfg.Passes {
		t.Errorf("%s passes = %d, want %d", macBad, bad.PassesUsed, cfg.Passes)
	}
	if bad.Err == nil {
		t.Error("failed result missing error")
	}
	if tr.handles[macGood] != nil && !tr.handles[macGood].disconnected {
		t.Error("successful session left connected with keepOpen=false")
	}
}

func TestRunnerSecondPassSkipsReconnect(t *testing.T) {
	tr := newFakeTransport()
	mac := "AA:BB:CC:DD:EE:12"
	// Fail enough writes to sink pass one entirely, then succeed.
	tr.handles[mac] = &fakeHandle{failWrites: 2}

	cfg := fastConfig()
	targets := []*Target{{Session: New(tr, testLight(mac, "SL90"), cfg), Packets: testPackets()}}
	results := NewRunner(cfg).Send(context.Background(), targets, false)

	if results[0].Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want success on pass two: %v", results[0].Outcome, results[0].Err)
	}
	if results[0].PassesUsed != 2 {
		t.Errorf("passes = %d, want 2", results[0].PassesUsed)
	}
	if tr.connects[mac] != 1 {
		t.Errorf("connects = %d, want 1 (connection must survive a failed write pass)", tr.connects[mac])
	}
}

func TestRunnerBoundedConcurrency(t *testing.T) {
	tr := newFakeTransport()
	tr.connectDelay = 30 * time.Millisecond

	cfg := fastConfig()
	cfg.Parallel = 2
	macs := []string{
		"AA:BB:CC:DD:EE:20", "AA:BB:CC:DD:EE:21", "AA:BB:CC:DD:EE:22",
		"AA:BB:CC:DD:EE:23", "AA:BB:CC:DD:EE:24",
	}
	targets := make([]*Target, 0, len(macs))
	for _, mac := range macs {
		targets = append(targets, &Target{Session: New(tr, testLight(mac, "SL90"), cfg), Packets: testPackets()})
	}
	results := NewRunner(cfg).Send(context.Background(), targets, false)

	for _, r := range results {
		if r.Outcome != OutcomeSuccess {
			t.Fatalf("%s outcome = %s: %v", r.MAC, r.Outcome, r.Err)
		}
	}
	if tr.maxInFlight > cfg.Parallel {
		t.Errorf("max concurrent connects = %d, want <= %d", tr.maxInFlight, cfg.Parallel)
	}
}

func TestRunnerConnectBounded(t *testing.T) {
	tr := newFakeTransport()
	tr.connectDelay = 30 * time.Millisecond
	tr.failConnects["AA:BB:CC:DD:EE:27"] = 10

	cfg := fastConfig()
	cfg.Parallel = 2
	cfg.ConnectRetries = 1
	macs := []string{
		"AA:BB:CC:DD:EE:25", "AA:BB:CC:DD:EE:26", "AA:BB:CC:DD:EE:27",
		"AA:BB:CC:DD:EE:28", "AA:BB:CC:DD:EE:29",
	}
	sessions := make([]*Session, 0, len(macs))
	for _, mac := range macs {
		sessions = append(sessions, New(tr, testLight(mac, "SL90"), cfg))
	}

	ready, failed := NewRunner(cfg).Connect(context.Background(), sessions)
	if tr.maxInFlight > cfg.Parallel {
		t.Errorf("max concurrent connects = %d, want <= %d", tr.maxInFlight, cfg.Parallel)
	}
	if len(ready) != 4 {
		t.Fatalf("ready = %d sessions, want 4", len(ready))
	}
	for i := 1; i < len(ready); i++ {
		if ready[i-1].Light.MAC > ready[i].Light.MAC {
			t.Fatal("ready sessions not ordered by MAC")
		}
	}
	if len(failed) != 1 || failed[0].MAC != "AA:BB:CC:DD:EE:27" {
		t.Fatalf("failed = %v, want the refused light only", failed)
	}
	if failed[0].Err == nil {
		t.Error("failed result missing error")
	}
	for _, s := range ready {
		s.Disconnect()
	}
}

func TestRunnerKeepOpenLeavesSuccessesConnected(t *testing.T) {
	tr := newFakeTransport()
	mac := "AA:BB:CC:DD:EE:30"

	cfg := fastConfig()
	targets := []*Target{{Session: New(tr, testLight(mac, "SL90"), cfg), Packets: testPackets()}}
	runner := NewRunner(cfg)
	results := runner.Send(context.Background(), targets, true)

	if results[0].Outcome != OutcomeSuccess {
		t.Fatal(results[0].Err)
	}
	if !targets[0].Session.Connected() {
		t.Fatal("session not kept open with keepOpen=true")
	}
	runner.DisconnectAll(targets)
	if targets[0].Session.Connected() {
		t.Error("session still connected after DisconnectAll")
	}
}

func TestRunnerCancellation(t *testing.T) {
	tr := newFakeTransport()
	tr.connectDelay = 100 * time.Millisecond
	mac := "AA:BB:CC:DD:EE:31"

	cfg := fastConfig()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	targets := []*Target{{Session: New(tr, testLight(mac, "SL90"), cfg), Packets: testPackets()}}
	results := NewRunner(cfg).Send(ctx, targets, false)

	if results[0].Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed on cancelled context", results[0].Outcome)
	}
	if tr.connects[mac] != 0 {
		t.Errorf("connects = %d, want 0 after cancellation", tr.connects[mac])
	}
}

func statusResponder(query []byte, notify func([]byte)) {
	if len(query) < 2 {
		return
	}
	switch query[1] {
	case 133: // power query -> power notify (type 2)
		notify([]byte{128, protocol.NotifyTypePower, 1, 1, 0})
	case 132: // channel query -> channel notify (type 1)
		notify([]byte{128, protocol.NotifyTypeChannel, 1, 3, 0})
	}
}

func TestSessionQueryStatus(t *testing.T) {
	tr := newFakeTransport()
	mac := "AA:BB:CC:DD:EE:40"
	tr.handles[mac] = &fakeHandle{respond: statusResponder}

	l := testLight(mac, "RGB660 PRO")
	s := New(tr, l, fastConfig())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Disconnect()

	status, err := s.QueryStatus(context.Background())
	if err != nil {
		t.Fatalf("QueryStatus() = %v", err)
	}
	if status.Power != protocol.PowerOn {
		t.Errorf("power = %s, want %s", status.Power, protocol.PowerOn)
	}
	if status.Channel != 3 {
		t.Errorf("channel = %d, want 3", status.Channel)
	}
}

func TestSessionQueryStatusUnsupportedModel(t *testing.T) {
	tr := newFakeTransport()
	mac := "AA:BB:CC:DD:EE:41"
	tr.handles[mac] = &fakeHandle{respond: statusResponder}

	l := testLight(mac, "CB60 RGB") // CB-series lights do not answer status queries
	s := New(tr, l, fastConfig())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Disconnect()

	_, err := s.QueryStatus(context.Background())
	var unsupported *protocol.UnsupportedCommandError
	if !errors.As(err, &unsupported) {
		t.Fatalf("QueryStatus() = %v, want *UnsupportedCommandError", err)
	}
}

func TestSessionQueryStatusTimeout(t *testing.T) {
	tr := newFakeTransport()
	mac := "AA:BB:CC:DD:EE:42"
	tr.handles[mac] = &fakeHandle{} // subscribes fine, never answers

	s := New(tr, testLight(mac, "RGB660"), fastConfig())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Disconnect()

	if _, err := s.QueryStatus(context.Background()); err == nil {
		t.Fatal("QueryStatus() = nil, want timeout error")
	}
}
