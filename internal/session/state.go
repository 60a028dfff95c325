package session

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"

	"github.com/bchazalet/weatherapp/internal/weather"
)

// IconState is the serializable part of a weather.Icon.
type IconState struct {
	Code        string `json:"code"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// State is what survives a display being torn down and rebuilt: the selector
// position and the last displayed record and icon.
type State struct {
	Position int             `json:"position"`
	Record   *weather.Record `json:"record,omitempty"`
	Icon     *IconState      `json:"icon,omitempty"`
}

// Snapshot captures the displayed state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{Position: c.position}
	if c.record != nil {
		rec := *c.record
		st.Record = &rec
	}
	if c.iconVisible && c.icon != nil {
		st.Icon = &IconState{
			Code:        c.icon.Code,
			ContentType: c.icon.ContentType,
			Data:        append([]byte(nil), c.icon.Data...),
		}
	}
	return st
}

// Restore redisplays a saved state without fetching anything. A fetch still in
// flight is cancelled and its completion dropped; the selector stays disabled
// until that fetch has returned.
func (c *Controller) Restore(st State) error {
	if st.Position < 0 || st.Position > len(c.cities) {
		return fmt.Errorf("%w: %d", ErrInvalidPosition, st.Position)
	}

	var icon *weather.Icon
	if st.Icon != nil {
		img, _, err := image.Decode(bytes.NewReader(st.Icon.Data))
		if err != nil {
			return fmt.Errorf("restore icon %q: %w", st.Icon.Code, err)
		}
		icon = &weather.Icon{
			Code:        st.Icon.Code,
			ContentType: st.Icon.ContentType,
			Data:        st.Icon.Data,
			Image:       img,
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
	}
	c.fetch = uuid.New()
	c.position = st.Position
	c.record = nil
	if st.Record != nil {
		rec := *st.Record
		c.record = &rec
	}
	c.icon = icon
	c.iconVisible = icon != nil
	c.lastError = ""
	return nil
}
