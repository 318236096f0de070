package cmd

import (
	"fmt"
	"os"
	"path"
	"time"

	"github.com/briandowns/spinner"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/storacha/mirror/pkg/bus"
)

// isTerminal reports whether stream, a reader or writer, is a terminal.
func isTerminal(stream any) bool {
	f, ok := stream.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// startProgress shows a spinner with the bytes moved so far while a
// transfer runs. It does nothing unless stderr is a terminal. Call the
// returned function to remove it.
func startProgress(cmd *cobra.Command, events bus.Bus, label string) (stop func()) {
	if !isTerminal(cmd.ErrOrStderr()) {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
	s.Suffix = " " + label
	onProgress := func(ev bus.TransferProgress) {
		s.Lock()
		s.Suffix = fmt.Sprintf(" %s %s %s", label, path.Base(ev.Path), humanize.IBytes(uint64(ev.Bytes)))
		s.Unlock()
	}
	if err := events.Subscribe(bus.TopicTransferProgress, onProgress); err != nil {
		log.Warnw("Progress display unavailable", "err", err)
	}
	s.Start()
	return func() {
		s.Stop()
		_ = events.Unsubscribe(bus.TopicTransferProgress, onProgress)
	}
}
