package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Drive runs work next to the program. Leaving the UI early cancels work's
// context, and Drive only returns once work has returned, so work can always
// finish writing its output.
func Drive(ctx context.Context, p *tea.Program, work func(ctx context.Context)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		work(ctx)
	}()

	_, err := p.Run()
	cancel()
	<-done
	return err
}
