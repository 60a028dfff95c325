// Package session drives a weather display without tying it to any UI toolkit.
//
// A Controller owns the city selector and the currently displayed record and
// icon. Fetches run on their own goroutines; their outcomes are applied to the
// controller state and then delivered, in order, on the Events channel, which
// a single UI goroutine is expected to drain.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bchazalet/weatherapp/internal/weather"
)

var (
	ErrBusy            = errors.New("selector disabled while a weather fetch is in flight")
	ErrInvalidPosition = errors.New("invalid selector position")
	ErrClosed          = errors.New("session closed")
	ErrOffline         = errors.New("no data connection")
)

// Messages shown to the user. The controller never exposes raw errors in the view.
const (
	DefaultPrompt   = "Select a city"
	MsgConnectivity = "No data connection is available."
	MsgRequest      = "Could not fetch the weather for this city."
	MsgIcon         = "Could not fetch the weather icon."
)

type EventKind string

const (
	EventWeather EventKind = "weather"
	EventIcon    EventKind = "icon"
	EventError   EventKind = "error"
)

// Event reports the outcome of one fetch. Fetch identifies the selection that
// started it; every event of one selection shares it.
type Event struct {
	ID       uuid.UUID
	Fetch    uuid.UUID
	Kind     EventKind
	Position int
	Record   *weather.Record
	Icon     *weather.Icon
	Err      error
	Message  string
}

// Options tunes a Controller. The zero value is usable.
type Options struct {
	// Prompt is the label at position 0.
	Prompt string
	// Online is consulted before every fetch. Nil means always online.
	Online func() bool
	// Timeout bounds each network call. Zero means no timeout.
	Timeout time.Duration
	// Buffer is the capacity of the events channel.
	Buffer int
}

type Controller struct {
	client  weather.Client
	cities  []weather.Location
	prompt  string
	online  func() bool
	timeout time.Duration

	mu          sync.Mutex
	closed   bool
	position int
	// running is the weather fetch still in flight, uuid.Nil when idle. The
	// selector is disabled while it is set.
	running uuid.UUID
	// fetch is the selection whose results are applied; cancelFetch stops it.
	fetch       uuid.UUID
	cancelFetch context.CancelFunc
	record      *weather.Record
	icon        *weather.Icon
	iconVisible bool
	lastError   string

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController creates a controller over a fixed list of cities. Position i
// (1-based) selects cities[i-1]; position 0 is the prompt.
func NewController(client weather.Client, cities []weather.Location, opts Options) *Controller {
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if opts.Online == nil {
		opts.Online = func() bool { return true }
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 16
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		client:  client,
		cities:  append([]weather.Location(nil), cities...),
		prompt:  opts.Prompt,
		online:  opts.Online,
		timeout: opts.Timeout,
		events:  make(chan Event, opts.Buffer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Events returns the completion channel. It is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Cities returns the selector entries, prompt first.
func (c *Controller) Cities() []string {
	out := make([]string, 0, len(c.cities)+1)
	out = append(out, c.prompt)
	for _, loc := range c.cities {
		out = append(out, loc.City)
	}
	return out
}

// Location returns the city behind a selector position.
func (c *Controller) Location(pos int) (weather.Location, bool) {
	if pos <= 0 || pos > len(c.cities) {
		return weather.Location{}, false
	}
	return c.cities[pos-1], true
}

// Select handles a selector change. Selecting the prompt or the current
// position records it without fetching.
func (c *Controller) Select(pos int) error {
	if pos < 0 || pos > len(c.cities) {
		return fmt.Errorf("%w: %d", ErrInvalidPosition, pos)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.running != uuid.Nil {
		c.mu.Unlock()
		return ErrBusy
	}
	if pos == 0 || pos == c.position {
		c.position = pos
		c.mu.Unlock()
		return nil
	}

	id := uuid.New()
	c.position = pos

	// A previous selection may still be fetching its icon.
	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
	}
	c.fetch = id

	// Close waits on wg before closing the events channel.
	c.wg.Add(1)

	if !c.online() {
		c.lastError = MsgConnectivity
		c.mu.Unlock()
		c.publish(Event{Fetch: id, Kind: EventError, Position: pos, Err: ErrOffline, Message: MsgConnectivity})
		c.wg.Done()
		return nil
	}

	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelFetch = cancel
	c.running = id
	loc := c.cities[pos-1]
	c.mu.Unlock()

	go c.fetchWeather(ctx, cancel, id, pos, loc)
	return nil
}

func (c *Controller) fetchWeather(ctx context.Context, cancel context.CancelFunc, id uuid.UUID, pos int, loc weather.Location) {
	defer c.wg.Done()
	defer cancel()

	reqCtx, reqCancel := c.requestContext(ctx)
	rec, err := c.client.FetchByCity(reqCtx, loc.City, loc.Country)
	reqCancel()

	c.mu.Lock()
	// The selector comes back whatever the outcome, superseded or not.
	if c.running == id {
		c.running = uuid.Nil
	}
	if c.fetch != id {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.lastError = MsgRequest
		c.mu.Unlock()
		c.publish(Event{Fetch: id, Kind: EventError, Position: pos, Err: err, Message: MsgRequest})
		return
	}
	c.record = &rec
	c.lastError = ""
	c.mu.Unlock()

	c.publish(Event{Fetch: id, Kind: EventWeather, Position: pos, Record: &rec})

	c.fetchIcon(ctx, id, pos, rec.Condition.Icon)
}

func (c *Controller) fetchIcon(ctx context.Context, id uuid.UUID, pos int, code string) {
	reqCtx, reqCancel := c.requestContext(ctx)
	icon, err := c.client.FetchIcon(reqCtx, code)
	reqCancel()

	c.mu.Lock()
	if c.fetch != id {
		c.mu.Unlock()
		return
	}
	if err != nil {
		// Do not leave the previous city's icon on screen.
		c.iconVisible = false
		c.lastError = MsgIcon
		c.mu.Unlock()
		c.publish(Event{Fetch: id, Kind: EventError, Position: pos, Err: err, Message: MsgIcon})
		return
	}
	c.icon = &icon
	c.iconVisible = true
	c.mu.Unlock()

	c.publish(Event{Fetch: id, Kind: EventIcon, Position: pos, Icon: &icon})
}

func (c *Controller) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(parent, c.timeout)
	}
	return context.WithCancel(parent)
}

func (c *Controller) publish(ev Event) {
	ev.ID = uuid.New()
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

// Busy reports whether the selector is disabled.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running != uuid.Nil
}

// Close cancels in-flight fetches, waits for them and closes the events channel.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	close(c.events)
}
