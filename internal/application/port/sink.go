package port

import "time"

// Sink is where the row consumers render.
type Sink interface {
	// WriteLive overwrites the current line (no newline).
	WriteLive(line string) error
	// WriteSnapshot appends a timestamped board line and leaves an empty line for live updates.
	WriteSnapshot(ts time.Time, line string) error
	// WriteNotice prints a one-off status line such as "no data yet".
	WriteNotice(msg string) error
	NewLine() error
}
