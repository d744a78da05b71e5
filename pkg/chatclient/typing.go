package chatclient

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/proto"
)

const (
	DefaultTypingWindow = 500 * time.Millisecond
	DefaultTypingIdle   = time.Second
	DefaultTypingExpiry = 3 * time.Second
)

// TypingDebouncer turns keystrokes in one conversation into start/stop
// signals. emit(true) is called at most once per window while typing
// continues, emit(false) once the input is cleared or goes idle.
type TypingDebouncer struct {
	window time.Duration
	idle   time.Duration
	emit   func(typing bool)

	mu       sync.Mutex
	active   bool
	lastEmit time.Time
	timer    *time.Timer
}

// NewTypingDebouncer builds a debouncer; zero durations take the defaults.
func NewTypingDebouncer(window, idle time.Duration, emit func(typing bool)) *TypingDebouncer {
	if window <= 0 {
		window = DefaultTypingWindow
	}
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &TypingDebouncer{window: window, idle: idle, emit: emit}
}

// Keystroke records the current input after a key press.
func (d *TypingDebouncer) Keystroke(input string) {
	if strings.TrimSpace(input) == "" {
		d.Stop()
		return
	}

	d.mu.Lock()
	now := time.Now()
	send := !d.active || now.Sub(d.lastEmit) >= d.window
	d.active = true
	if send {
		d.lastEmit = now
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.idle, d.expire)
	d.mu.Unlock()

	if send {
		d.emit(true)
	}
}

// Stop ends typing right away, e.g. when the message is sent.
func (d *TypingDebouncer) Stop() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	was := d.active
	d.active = false
	d.mu.Unlock()

	if was {
		d.emit(false)
	}
}

// Reset clears the state without emitting a stop.
func (d *TypingDebouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.active = false
}

// Active reports whether a start was emitted without a matching stop.
func (d *TypingDebouncer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *TypingDebouncer) expire() {
	d.mu.Lock()
	was := d.active
	d.active = false
	d.timer = nil
	d.mu.Unlock()

	if was {
		d.emit(false)
	}
}

// Indicator is a visible "is typing" marker.
type Indicator struct {
	UserID  int64
	Name    string
	Target  proto.Target
	Expires time.Time
}

// TypingView keeps the indicators of the conversation currently open.
// Events for other conversations are ignored, and every indicator hides
// itself after the expiry even when no stop arrives.
type TypingView struct {
	expiry time.Duration
	now    func() time.Time

	mu      sync.Mutex
	current int64
	typists map[int64]Indicator
}

// NewTypingView builds a view; zero expiry takes DefaultTypingExpiry.
func NewTypingView(expiry time.Duration) *TypingView {
	if expiry <= 0 {
		expiry = DefaultTypingExpiry
	}
	return &TypingView{expiry: expiry, now: time.Now, typists: make(map[int64]Indicator)}
}

// Open switches the view to another conversation and drops all indicators.
func (v *TypingView) Open(conversationID int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = conversationID
	v.typists = make(map[int64]Indicator)
}

// Current returns the open conversation, 0 if none.
func (v *TypingView) Current() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Apply folds a typing event into the view and reports whether it was
// relevant to the open conversation.
func (v *TypingView) Apply(ev proto.EventTypingData) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.current == 0 || ev.ConversationID != v.current {
		return false
	}
	if !ev.Typing {
		delete(v.typists, ev.UserID)
		return true
	}
	v.typists[ev.UserID] = Indicator{
		UserID:  ev.UserID,
		Name:    ev.Name,
		Target:  ev.Target,
		Expires: v.now().Add(v.expiry),
	}
	return true
}

// Active lists the indicators still visible, ordered by name.
func (v *TypingView) Active() []Indicator {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	out := make([]Indicator, 0, len(v.typists))
	for id, ind := range v.typists {
		if !now.Before(ind.Expires) {
			delete(v.typists, id)
			continue
		}
		out = append(out, ind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
