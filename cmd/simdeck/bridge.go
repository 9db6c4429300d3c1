package main

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/simdeck/simdeck/pkg/live"
)

// engineUpdateMsg carries one engine notification into the TUI.
type engineUpdateMsg struct {
	update live.Update
}

// startBridge launches the goroutine that converts engine updates into
// bubbletea messages. It only calls p.Send() — it never touches model state
// directly. The returned cancel function waits for the goroutine to exit,
// ensuring no stale messages are sent after return.
func startBridge(ctx context.Context, p *tea.Program, bus *live.Bus) context.CancelFunc {
	bridgeCtx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	sub := bus.Subscribe(64)

	wg.Go(func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-bridgeCtx.Done():
				return
			case u, ok := <-sub.C:
				if !ok {
					return
				}
				p.Send(engineUpdateMsg{update: u})
			}
		}
	})

	return func() {
		cancel()
		wg.Wait()
	}
}
