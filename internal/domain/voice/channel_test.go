package voice

import (
	"context"
	"sync"
	"testing"
	"time"

	"visionbridge-server-go/internal/domain/analysis"
	"visionbridge-server-go/internal/platform/errors"
)

type fakeTranscriber struct {
	text  string
	err   error
	block chan struct{}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

type fakeResolver struct {
	cmd Command
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, transcript string) (Command, error) {
	return f.cmd, f.err
}

type fakeControls struct {
	mu        sync.Mutex
	calls     []string
	analyzing bool
}

func (f *fakeControls) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeControls) StartCamera(ctx context.Context) error { f.record("start_camera"); return nil }
func (f *fakeControls) StopCamera()                           { f.record("stop_camera") }
func (f *fakeControls) StartAnalysis() error                  { f.record("start_analysis"); return nil }
func (f *fakeControls) StopAnalysis()                         { f.record("stop_analysis") }
func (f *fakeControls) Analyzing() bool                       { return f.analyzing }
func (f *fakeControls) CaptureOnce(ctx context.Context) error { f.record("capture"); return nil }
func (f *fakeControls) ToggleMode() analysis.Mode             { f.record("toggle_mode"); return analysis.ModeVideo }

func (f *fakeControls) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeSpeaker struct {
	mu        sync.Mutex
	spoken    []string
	cancelled int
}

func (f *fakeSpeaker) Enqueue(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
}

func (f *fakeSpeaker) CancelAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
}

func (f *fakeSpeaker) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.spoken))
	copy(out, f.spoken)
	return out
}

type fakeNavigator struct {
	guidance string
	err      error
	dests    []string
}

func (f *fakeNavigator) Guide(ctx context.Context, destination string) (string, error) {
	f.dests = append(f.dests, destination)
	return f.guidance, f.err
}

func newTestChannel(tr Transcriber, res Resolver) (*Channel, *fakeControls, *fakeSpeaker, *fakeNavigator) {
	controls := &fakeControls{}
	speaker := &fakeSpeaker{}
	nav := &fakeNavigator{guidance: "まっすぐ50メートル進みます"}
	ch := NewChannel(ChannelConfig{
		SessionID:   "test-session",
		Transcriber: tr,
		Resolver:    res,
		Controls:    controls,
		Speaker:     speaker,
		Navigator:   nav,
	})
	return ch, controls, speaker, nav
}

func TestChannel_ListenDispatchesCommand(t *testing.T) {
	ch, controls, speaker, _ := newTestChannel(
		&fakeTranscriber{text: "カメラを起動して"},
		&fakeResolver{cmd: Command{Action: ActionStartCamera, FulfillmentText: "カメラを起動します。"}},
	)

	if !ch.Listen(context.Background(), []byte{0x01}, "wav") {
		t.Fatal("Listen dropped a clip with no cycle in flight")
	}

	if got := controls.snapshot(); len(got) != 1 || got[0] != "start_camera" {
		t.Fatalf("controls calls = %v", got)
	}
	if got := speaker.snapshot(); len(got) != 1 || got[0] != "カメラを起動します。" {
		t.Fatalf("spoken = %v, want fulfillment text", got)
	}
}

func TestChannel_SingleFlightDropsOverlappingClip(t *testing.T) {
	block := make(chan struct{})
	ch, _, _, _ := newTestChannel(
		&fakeTranscriber{text: "撮影して", block: block},
		&fakeResolver{cmd: Command{Action: ActionCaptureImage}},
	)

	done := make(chan struct{})
	go func() {
		ch.Listen(context.Background(), []byte{0x01}, "wav")
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	if ch.Listen(context.Background(), []byte{0x02}, "wav") {
		t.Fatal("overlapping clip must be dropped")
	}

	close(block)
	<-done
}

func TestChannel_UnknownSpokenNotUnderstood(t *testing.T) {
	ch, controls, speaker, _ := newTestChannel(
		&fakeTranscriber{text: "今日の天気は"},
		&fakeResolver{cmd: Command{Action: ActionUnknown}},
	)

	ch.Listen(context.Background(), []byte{0x01}, "wav")

	if got := controls.snapshot(); len(got) != 0 {
		t.Fatalf("unknown command must not touch controls: %v", got)
	}
	if got := speaker.snapshot(); len(got) != 1 || got[0] != utterNotUnderstood {
		t.Fatalf("spoken = %v, want not-understood utterance", got)
	}
}

func TestChannel_TranscriptionFailureSpoken(t *testing.T) {
	ch, _, speaker, _ := newTestChannel(
		&fakeTranscriber{err: errors.New(errors.KindTransport, "test", "down")},
		&fakeResolver{},
	)

	ch.Listen(context.Background(), []byte{0x01}, "wav")

	if got := speaker.snapshot(); len(got) != 1 || got[0] != utterNotUnderstood {
		t.Fatalf("spoken = %v", got)
	}
}

func TestChannel_ToggleAnalysisFollowsState(t *testing.T) {
	ch, controls, _, _ := newTestChannel(&fakeTranscriber{text: "x"}, &fakeResolver{})

	ch.Dispatch(context.Background(), Command{Action: ActionToggleAnalysis})
	controls.analyzing = true
	ch.Dispatch(context.Background(), Command{Action: ActionToggleAnalysis})

	got := controls.snapshot()
	if len(got) != 2 || got[0] != "start_analysis" || got[1] != "stop_analysis" {
		t.Fatalf("controls calls = %v, want start then stop", got)
	}
}

func TestChannel_StopSpeakingCancelsQueue(t *testing.T) {
	ch, _, speaker, _ := newTestChannel(&fakeTranscriber{}, &fakeResolver{})

	ch.Dispatch(context.Background(), Command{Action: ActionStopSpeaking})

	if speaker.cancelled != 1 {
		t.Fatalf("cancelled = %d, want 1", speaker.cancelled)
	}
	if got := speaker.snapshot(); len(got) != 1 || got[0] != utterSpeechStopped {
		t.Fatalf("spoken = %v", got)
	}
}

func TestChannel_NavigationNeedsDestination(t *testing.T) {
	ch, _, speaker, nav := newTestChannel(&fakeTranscriber{}, &fakeResolver{})

	ch.Dispatch(context.Background(), Command{Action: ActionStartNavigation})

	if len(nav.dests) != 0 {
		t.Fatalf("navigator called without destination: %v", nav.dests)
	}
	if got := speaker.snapshot(); len(got) != 1 || got[0] != utterNeedDestination {
		t.Fatalf("spoken = %v, want clarification", got)
	}
}

func TestChannel_NavigationSpeaksGuidance(t *testing.T) {
	ch, _, speaker, nav := newTestChannel(&fakeTranscriber{}, &fakeResolver{})

	ch.Dispatch(context.Background(), Command{
		Action:     ActionStartNavigation,
		Parameters: map[string]string{"destination": "東京駅"},
	})

	if len(nav.dests) != 1 || nav.dests[0] != "東京駅" {
		t.Fatalf("navigator dests = %v", nav.dests)
	}
	if got := speaker.snapshot(); len(got) != 1 || got[0] != "まっすぐ50メートル進みます" {
		t.Fatalf("spoken = %v", got)
	}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Action
		dest string
	}{
		{"plain json", `{"action":"start_camera"}`, ActionStartCamera, ""},
		{"fenced json", "```json\n{\"action\":\"toggle_mode\"}\n```", ActionToggleMode, ""},
		{"with destination", `{"action":"start_navigation","parameters":{"destination":"駅"}}`, ActionStartNavigation, "駅"},
		{"prose around json", `了解です。{"action":"stop_camera"}以上です。`, ActionStopCamera, ""},
		{"invalid json", "起動します", ActionUnknown, ""},
		{"unknown action", `{"action":"dance"}`, ActionUnknown, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := ParseCommand(tc.raw)
			if cmd.Action != tc.want {
				t.Fatalf("action = %s, want %s", cmd.Action, tc.want)
			}
			if cmd.Destination() != tc.dest {
				t.Fatalf("destination = %q, want %q", cmd.Destination(), tc.dest)
			}
		})
	}
}
