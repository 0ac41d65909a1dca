// Package console drives a meeting from an interactive terminal.
package console

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"
	"github.com/mattn/go-runewidth"

	"github.com/meetline/server/agenda"
	"github.com/meetline/server/app"
	"github.com/meetline/server/segment"
)

// LineReader is satisfied by *readline.Instance.
type LineReader interface {
	Readline() (string, error)
}

var errQuit = errors.New("quit")

type command struct {
	name  string
	usage string
	run   func(c *Console, args []string) error
	// mutates is set for commands after which the recording status is shown.
	mutates bool
}

var commands []command

func init() {
	commands = []command{
		{"start", "start recording at 0:00 on the first item", func(c *Console, _ []string) error { return c.engine.Session.Start() }, true},
		{"pause", "pause recording", func(c *Console, _ []string) error { return c.engine.Session.Pause() }, true},
		{"resume", "resume recording", func(c *Console, _ []string) error { return c.engine.Session.Resume() }, true},
		{"stop", "stop recording; the session cannot be restarted", func(c *Console, _ []string) error { return c.engine.Session.Stop() }, true},
		{"switch", "switch <id|number>  discuss another item", (*Console).switchTo, true},
		{"next", "discuss the next item in display order", (*Console).next, true},
		{"complete", "complete <id|number>  mark an item completed", (*Console).complete, true},
		{"tree", "show the agenda with time spent per item", (*Console).tree, false},
		{"report", "show the dwell report", (*Console).report, false},
		{"pending", "list writes the store has not confirmed", (*Console).pending, false},
		{"status", "show the recording state", (*Console).status, false},
		{"help", "list commands", (*Console).help, false},
		{"quit", "leave the console", func(*Console, []string) error { return errQuit }, false},
	}
}

type Console struct {
	engine *app.Engine
	out    io.Writer
}

func New(engine *app.Engine, out io.Writer) *Console {
	return &Console{engine: engine, out: out}
}

// Run reads commands until EOF or quit. Ctrl-C on an empty line is ignored.
func (c *Console) Run(in LineReader) error {
	for {
		line, err := in.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}
		if err := c.Exec(line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
}

// Exec runs one command line.
func (c *Console) Exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name := fields[0]
	if name == "exit" {
		name = "quit"
	}
	for _, cmd := range commands {
		if cmd.name == name {
			if err := cmd.run(c, fields[1:]); err != nil {
				return err
			}
			if cmd.mutates {
				return c.status(nil)
			}
			return nil
		}
	}
	return fmt.Errorf("unknown command %q (try help)", name)
}

// resolve accepts an item id or its display number such as "2.1".
func (c *Console) resolve(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("expected one item id or number")
	}
	tree, err := c.engine.Mirror.Tree()
	if err != nil {
		return "", err
	}
	if _, ok := tree.FindByID(args[0]); ok {
		return args[0], nil
	}
	for id, num := range tree.Numbering() {
		if num == args[0] {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %s", agenda.ErrItemNotFound, args[0])
}

func (c *Console) switchTo(args []string) error {
	id, err := c.resolve(args)
	if err != nil {
		return err
	}
	return c.engine.Session.Switch(id)
}

func (c *Console) next(_ []string) error {
	items := c.engine.Mirror.List()
	if len(items) == 0 {
		return segment.ErrEmptyAgenda
	}
	active := c.engine.Mirror.ActiveID()
	for i, it := range items {
		if it.ID == active {
			if i+1 == len(items) {
				return errors.New("already on the last item")
			}
			return c.engine.Session.Switch(items[i+1].ID)
		}
	}
	return c.engine.Session.Switch(items[0].ID)
}

func (c *Console) complete(args []string) error {
	id, err := c.resolve(args)
	if err != nil {
		return err
	}
	return c.engine.Session.Complete(id)
}

func (c *Console) tree(_ []string) error {
	tree, err := c.engine.Mirror.Tree()
	if err != nil {
		return err
	}
	active := c.engine.Mirror.ActiveID()
	numbers := tree.Numbering()
	tree.Walk(func(n *agenda.Node) bool {
		marker := " "
		if n.ID == active {
			marker = "▶"
		}
		fmt.Fprintf(c.out, "%s %s%-6s %s %6s  %s\n",
			marker,
			strings.Repeat("  ", n.Depth),
			numbers[n.ID],
			fitTitle(n.Title, titleWidth),
			FormatSeconds(segment.Dwell(n.TimeSegments)),
			n.Status)
		return true
	})
	return nil
}

func (c *Console) report(_ []string) error {
	r, err := c.engine.Report()
	if err != nil {
		return err
	}
	return WriteReport(c.out, r)
}

func (c *Console) pending(_ []string) error {
	entries := c.engine.Gateway.Pending()
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "no pending writes")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(c.out, "%s v%d %d ranges", e.ItemID, e.Patch.Version, len(e.Patch.Segments))
		if e.LastError != "" {
			fmt.Fprintf(c.out, " (%s)", e.LastError)
		}
		fmt.Fprintln(c.out)
	}
	return nil
}

func (c *Console) status(_ []string) error {
	snap := c.engine.Session.Snapshot()
	active := "-"
	if it, ok := c.engine.Mirror.Get(snap.ActiveItemID); ok {
		active = it.Title
	}
	fmt.Fprintf(c.out, "[%s %s] %s\n", snap.State, FormatSeconds(snap.Elapsed), active)
	return nil
}

func (c *Console) help(_ []string) error {
	for _, cmd := range commands {
		fmt.Fprintf(c.out, "  %-9s %s\n", cmd.name, cmd.usage)
	}
	return nil
}

const titleWidth = 30

// fitTitle truncates or pads title to exactly width terminal cells.
func fitTitle(title string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(title, width, "…"), width)
}

// WriteReport prints a dwell report as an aligned table.
func WriteReport(w io.Writer, r segment.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tITEM\tRANGES\tTIME\tWITH CHILDREN\tSTATUS")
	for _, e := range r.Entries {
		title := strings.Repeat("  ", e.Depth) + e.Title
		if e.Open {
			title += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			e.Number, title, e.Ranges, FormatSeconds(e.Seconds), FormatSeconds(e.RollupSeconds), e.Status)
	}
	fmt.Fprintf(tw, "\tTOTAL\t\t%s\t\t\n", FormatSeconds(r.TotalSeconds))
	return tw.Flush()
}

// FormatSeconds renders elapsed seconds as m:ss, or h:mm:ss past an hour.
func FormatSeconds(s int) string {
	if s < 0 {
		s = 0
	}
	h, m, sec := s/3600, s/60%60, s%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}
