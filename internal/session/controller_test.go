package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bchazalet/weatherapp/internal/weather"
)

var cities = []weather.Location{
	{City: "London", Country: "uk"},
	{City: "Manchester", Country: "uk"},
	{City: "Paris", Country: "fr"},
}

var londonRecord = weather.Record{
	Name:      "London",
	Location:  weather.Coordinates{Lat: 51.5, Lon: -0.12},
	Temp:      280.32,
	TempMin:   279.0,
	TempMax:   281.0,
	Humidity:  81,
	Pressure:  1012,
	Condition: weather.Condition{Main: "Rain", Description: "light rain", Icon: "10d"},
}

// fakeClient records calls. When gate is set, FetchByCity blocks until it is
// closed or, unless ignoreCancel is set, the context ends.
type fakeClient struct {
	mu           sync.Mutex
	records      map[string]weather.Record
	weatherErr   error
	iconErr      error
	gate         chan struct{}
	ignoreCancel bool
	cityCalls    []string
	iconCalls    []string
	inflight     int
	maxInflight  int
}

func (f *fakeClient) FetchByCity(ctx context.Context, city, country string) (weather.Record, error) {
	f.mu.Lock()
	f.cityCalls = append(f.cityCalls, city+","+country)
	f.inflight++
	f.maxInflight = max(f.maxInflight, f.inflight)
	gate, ignoreCancel := f.gate, f.ignoreCancel
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if gate != nil {
		done := ctx.Done()
		if ignoreCancel {
			done = nil
		}
		select {
		case <-gate:
		case <-done:
			return weather.Record{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.weatherErr != nil {
		return weather.Record{}, f.weatherErr
	}
	rec, ok := f.records[city]
	if !ok {
		return weather.Record{}, &weather.ProviderError{StatusCode: 404}
	}
	return rec, nil
}

func (f *fakeClient) FetchIcon(_ context.Context, code string) (weather.Icon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.iconCalls = append(f.iconCalls, code)
	if f.iconErr != nil {
		return weather.Icon{}, f.iconErr
	}
	return weather.Icon{Code: code, ContentType: "image/png", Data: []byte("icon-" + code)}, nil
}

func (f *fakeClient) calls() (cityCalls, iconCalls []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cityCalls...), append([]string(nil), f.iconCalls...)
}

func newFake() *fakeClient {
	paris := londonRecord
	paris.Name = "Paris"
	paris.Condition.Icon = "01d"
	return &fakeClient{records: map[string]weather.Record{
		"London": londonRecord,
		"Paris":  paris,
	}}
}

func nextEvent(t *testing.T, c *Controller) Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSelectFetchesWeatherThenIcon(t *testing.T) {
	client := newFake()
	c := NewController(client, cities, Options{})
	defer c.Close()

	require.NoError(t, c.Select(1))

	ev := nextEvent(t, c)
	require.Equal(t, EventWeather, ev.Kind)
	assert.Equal(t, 1, ev.Position)
	assert.Equal(t, londonRecord, *ev.Record)

	ev2 := nextEvent(t, c)
	require.Equal(t, EventIcon, ev2.Kind)
	assert.Equal(t, "10d", ev2.Icon.Code)
	assert.Equal(t, ev.Fetch, ev2.Fetch)
	assert.NotEqual(t, ev.ID, ev2.ID)

	cityCalls, iconCalls := client.calls()
	assert.Equal(t, []string{"London,uk"}, cityCalls)
	assert.Equal(t, []string{"10d"}, iconCalls, "icon fetched with the code just obtained")

	v := c.View()
	assert.True(t, v.SelectorEnabled)
	assert.Equal(t, "London", v.Name)
	assert.Equal(t, "51.5, -0.12", v.Location)
	assert.Equal(t, "280.3", v.Temp)
	assert.Equal(t, "279.0", v.TempMin)
	assert.Equal(t, "281.0", v.TempMax)
	assert.Equal(t, "81.0", v.Humidity)
	assert.Equal(t, "1012.0", v.Pressure)
	assert.Equal(t, "Rain: light rain", v.Condition)
	assert.True(t, v.IconVisible)
	assert.Equal(t, "10d", v.IconCode)
	assert.Empty(t, v.Error)
}

func TestSecondSelectionUsesItsOwnIconCode(t *testing.T) {
	client := newFake()
	c := NewController(client, cities, Options{})
	defer c.Close()

	require.NoError(t, c.Select(1))
	nextEvent(t, c)
	nextEvent(t, c)

	require.NoError(t, c.Select(3))
	ev := nextEvent(t, c)
	require.Equal(t, EventWeather, ev.Kind)
	ev = nextEvent(t, c)
	require.Equal(t, EventIcon, ev.Kind)

	_, iconCalls := client.calls()
	assert.Equal(t, []string{"10d", "01d"}, iconCalls)
	assert.Equal(t, "01d", c.View().IconCode)
}

func TestSelectorDisabledWhileFetching(t *testing.T) {
	client := newFake()
	client.gate = make(chan struct{})
	c := NewController(client, cities, Options{})
	defer c.Close()

	require.NoError(t, c.Select(1))
	assert.True(t, c.Busy())
	assert.False(t, c.View().SelectorEnabled)
	assert.ErrorIs(t, c.Select(2), ErrBusy)

	close(client.gate)
	assert.Equal(t, EventWeather, nextEvent(t, c).Kind)
	assert.False(t, c.Busy())
	assert.Equal(t, EventIcon, nextEvent(t, c).Kind)

	cityCalls, _ := client.calls()
	assert.Equal(t, []string{"London,uk"}, cityCalls)
}

func TestSelectorReenabledAfterFailure(t *testing.T) {
	client := newFake()
	client.weatherErr = errors.Join(weather.ErrNetwork, errors.New("dial tcp: refused"))
	c := NewController(client, cities, Options{})
	defer c.Close()

	require.NoError(t, c.Select(1))
	ev := nextEvent(t, c)
	require.Equal(t, EventError, ev.Kind)
	assert.Equal(t, MsgRequest, ev.Message)
	assert.ErrorIs(t, ev.Err, weather.ErrNetwork)

	assert.False(t, c.Busy())
	v := c.View()
	assert.True(t, v.SelectorEnabled)
	assert.Equal(t, MsgRequest, v.Error)
	assert.Empty(t, v.Name)

	_, iconCalls := client.calls()
	assert.Empty(t, iconCalls, "no icon fetch after a failed weather fetch")
}

func TestPromptAndSamePositionDoNotFetch(t *testing.T) {
	client := newFake()
	c := NewController(client, cities, Options{})
	defer c.Close()

	require.NoError(t, c.Select(0))
	require.NoError(t, c.Select(1))
	nextEvent(t, c)
	nextEvent(t, c)
	require.NoError(t, c.Select(1))

	cityCalls, _ := client.calls()
	assert.Equal(t, []string{"London,uk"}, cityCalls)
	assert.Equal(t, 1, c.View().Position)
}

func TestSelectInvalidPosition(t *testing.T) {
	c := NewController(newFake(), cities, Options{})
	defer c.Close()

	assert.ErrorIs(t, c.Select(-1), ErrInvalidPosition)
	assert.ErrorIs(t, c.Select(len(cities)+1), ErrInvalidPosition)
}

func TestOfflineSelectionReportsConnectivity(t *testing.T) {
	client := newFake()
	c := NewController(client, cities, Options{Online: func() bool { return false }})
	defer c.Close()

	require.NoError(t, c.Select(2))
	ev := nextEvent(t, c)
	assert.Equal(t, EventError, ev.Kind)
	assert.ErrorIs(t, ev.Err, ErrOffline)
	assert.Equal(t, MsgConnectivity, ev.Message)

	cityCalls, _ := client.calls()
	assert.Empty(t, cityCalls)
	assert.Equal(t, 2, c.View().Position)
	assert.True(t, c.View().SelectorEnabled)
}

func TestIconFailureHidesPreviousIcon(t *testing.T) {
	client := newFake()
	c := NewController(client, cities, Options{})
	defer c.Close()

	require.NoError(t, c.Select(1))
	nextEvent(t, c)
	nextEvent(t, c)
	require.True(t, c.View().IconVisible)

	client.mu.Lock()
	client.iconErr = errors.Join(weather.ErrParse, errors.New("bad png"))
	client.mu.Unlock()

	require.NoError(t, c.Select(3))
	assert.Equal(t, EventWeather, nextEvent(t, c).Kind)
	ev := nextEvent(t, c)
	require.Equal(t, EventError, ev.Kind)
	assert.Equal(t, MsgIcon, ev.Message)

	v := c.View()
	assert.Equal(t, "Paris", v.Name, "record stays displayed")
	assert.False(t, v.IconVisible)
	assert.Empty(t, v.IconCode)
	_, ok := c.Icon()
	assert.False(t, ok)
}

func TestTimeoutFailsFetch(t *testing.T) {
	client := newFake()
	client.gate = make(chan struct{})
	c := NewController(client, cities, Options{Timeout: 20 * time.Millisecond})
	defer c.Close()

	require.NoError(t, c.Select(1))
	ev := nextEvent(t, c)
	assert.Equal(t, EventError, ev.Kind)
	assert.ErrorIs(t, ev.Err, context.DeadlineExceeded)
	assert.False(t, c.Busy())
}

func TestSnapshotRestore(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))

	client := newFake()
	c := NewController(client, cities, Options{})
	defer c.Close()

	st := State{
		Position: 1,
		Record:   &londonRecord,
		Icon:     &IconState{Code: "10d", ContentType: "image/png", Data: buf.Bytes()},
	}
	require.NoError(t, c.Restore(st))

	v := c.View()
	assert.Equal(t, "London", v.Name)
	assert.True(t, v.IconVisible)
	assert.Equal(t, 1, v.Position)

	icon, ok := c.Icon()
	require.True(t, ok)
	require.NotNil(t, icon.Image)

	// Reselecting the restored city must not fetch again.
	require.NoError(t, c.Select(1))
	cityCalls, _ := client.calls()
	assert.Empty(t, cityCalls)

	assert.Equal(t, st, c.Snapshot())
}

func TestRestoreCancelsInFlightFetch(t *testing.T) {
	client := newFake()
	client.gate = make(chan struct{})
	c := NewController(client, cities, Options{})
	defer c.Close()

	require.NoError(t, c.Select(3))
	require.NoError(t, c.Restore(State{Position: 1, Record: &londonRecord}))
	assert.Equal(t, "London", c.View().Name)

	// The cancelled fetch returns promptly and re-enables the selector.
	require.Eventually(t, func() bool { return !c.Busy() }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Select(2))
	close(client.gate)

	ev := nextEvent(t, c)
	assert.Equal(t, EventError, ev.Kind, "Manchester is unknown to the fake")
	assert.Equal(t, 2, ev.Position)

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, []string{"Paris,fr", "Manchester,uk"}, client.cityCalls)
	assert.Equal(t, 1, client.maxInflight, "weather fetches never overlap")
}

func TestRestoreKeepsSelectorDisabledUntilFetchReturns(t *testing.T) {
	client := newFake()
	client.gate = make(chan struct{})
	client.ignoreCancel = true
	c := NewController(client, cities, Options{})

	require.NoError(t, c.Select(3))
	require.NoError(t, c.Restore(State{Position: 1, Record: &londonRecord}))

	assert.True(t, c.Busy())
	assert.False(t, c.View().SelectorEnabled)
	assert.ErrorIs(t, c.Select(2), ErrBusy)

	close(client.gate)
	require.Eventually(t, func() bool { return !c.Busy() }, 2*time.Second, 5*time.Millisecond)
	c.Close()

	for ev := range c.Events() {
		t.Fatalf("unexpected event after restore: %+v", ev)
	}
	assert.Equal(t, "London", c.View().Name, "stale Paris result dropped")

	cityCalls, _ := client.calls()
	assert.Equal(t, []string{"Paris,fr"}, cityCalls)
}

func TestRestoreRejectsBadState(t *testing.T) {
	c := NewController(newFake(), cities, Options{})
	defer c.Close()

	assert.ErrorIs(t, c.Restore(State{Position: 9}), ErrInvalidPosition)
	assert.Error(t, c.Restore(State{Position: 1, Icon: &IconState{Code: "x", Data: []byte("nope")}}))
}

func TestCloseIsIdempotentAndRejectsSelect(t *testing.T) {
	c := NewController(newFake(), cities, Options{})
	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Select(1), ErrClosed)
	_, open := <-c.Events()
	assert.False(t, open)
}

func TestCities(t *testing.T) {
	c := NewController(newFake(), cities, Options{Prompt: "Pick one"})
	defer c.Close()

	assert.Equal(t, []string{"Pick one", "London", "Manchester", "Paris"}, c.Cities())
	loc, ok := c.Location(3)
	assert.True(t, ok)
	assert.Equal(t, "fr", loc.Country)
	_, ok = c.Location(0)
	assert.False(t, ok)
}

func TestFormatDecimal(t *testing.T) {
	assert.Equal(t, "0.5", FormatDecimal(0.5))
	assert.Equal(t, "-3.0", FormatDecimal(-3))
	assert.Equal(t, "1012.0", FormatDecimal(1012))
	assert.Equal(t, "280.3", FormatDecimal(280.32))
}
