package events

import (
	"context"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

var Emit = func(ctx context.Context, name string, evt ChatEvent) {}

func EnableRuntimeEmitter() {
	Emit = func(ctx context.Context, name string, evt ChatEvent) {
		if evt.SessionID == "" {
			if session := SessionFromContext(ctx); session != "" {
				evt.SessionID = session
			}
		}

		runtime.EventsEmit(ctx, name, evt)
		logRuntimeEvent(ctx, name, evt)
	}
}

func SetCustomEmitter(f func(ctx context.Context, name string, evt ChatEvent)) {
	if f == nil {
		Emit = func(context.Context, string, ChatEvent) {}
		return
	}
	Emit = func(ctx context.Context, name string, evt ChatEvent) {
		if evt.SessionID == "" {
			if session := SessionFromContext(ctx); session != "" {
				evt.SessionID = session
			}
		}
		f(ctx, name, evt)
	}
}
