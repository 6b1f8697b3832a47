package render

import (
	"context"
	"time"
)

// DefaultFrameInterval caps the regular redraw rate at roughly 30 fps.
const DefaultFrameInterval = 33 * time.Millisecond

// Run redraws until ctx is done. On every tick a frame is shown only when
// state changed. A Kick with the force flag set (navigation) shows one
// immediately; other changes wait for the tick. show must not block for long.
func (e *Engine) Run(ctx context.Context, interval time.Duration, show func(Layout)) {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	draw := func() {
		if !e.NeedsRender() {
			return
		}
		l := e.Render()
		e.MarkRendered()
		show(l)
	}

	draw()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.kick:
			if e.Forced() {
				draw()
			}
		case <-ticker.C:
			draw()
		}
	}
}
