// Package console is an interactive full-screen serial console over an SPP link.
package console

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/darkhz/tview"
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/darkhz/btspp/pipe"
	"github.com/darkhz/btspp/spp"
	"github.com/darkhz/btspp/ui/keybindings"
	"github.com/darkhz/btspp/ui/theme"
)

// DefaultPollInterval is how often the console checks the link for received bytes.
const DefaultPollInterval = 50 * time.Millisecond

// maxLines bounds the scrollback of the output view.
const maxLines = 2000

// Link is the SPP link which the console is attached to.
// Both spp.Master and spp.Slave implement it.
type Link interface {
	Write(p []byte) (int, error)
	ReceiveBinary(n int) ([]byte, error)
	Available() (int, error)
	Ready() bool
	Close() error
	StateTitle() string
	Connection() *spp.ConnectionState
	Notifier() *spp.Notifier
	Stats() spp.StatsSnapshot
}

// Options holds the settings of the console.
type Options struct {
	Role         string
	Theme        theme.Theme
	Keybindings  *keybindings.Keybindings
	Logger       *zap.Logger
	PollInterval time.Duration
}

// Console holds the console views.
type Console struct {
	link Link
	opts Options

	app    *tview.Application
	output *tview.TextView
	input  *tview.InputField
	status *tview.TextView
	help   *tview.TextView

	hexView atomic.Bool
	message atomic.String
}

// New returns a new console for the link.
func New(link Link, opts Options) *Console {
	if opts.Theme == nil {
		opts.Theme = theme.Default()
	}
	if opts.Keybindings == nil {
		opts.Keybindings = keybindings.NewKeybindings()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	return &Console{link: link, opts: opts}
}

// Run shows the console until the user quits or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	c.app = tview.NewApplication()
	layout := c.layout()

	c.app.SetInputCapture(c.inputCapture)

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.receive(ctx)
	})
	g.Go(func() error {
		c.watch(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		c.app.Stop()

		return nil
	})

	err := c.app.SetRoot(layout, true).SetFocus(c.input).Run()
	cancel()

	if werr := g.Wait(); werr != nil && !errors.Is(werr, context.Canceled) && err == nil {
		err = werr
	}

	return err
}

func (c *Console) layout() tview.Primitive {
	th := c.opts.Theme

	c.output = tview.NewTextView()
	c.output.SetDynamicColors(true)
	c.output.SetScrollable(true)
	c.output.SetMaxLines(maxLines)
	c.output.SetTextColor(th.Color(theme.ThemeText))
	c.output.SetBackgroundColor(th.Color(theme.ThemeBackground))
	c.output.SetChangedFunc(func() {
		c.output.ScrollToEnd()
	})
	c.output.SetBorder(true)
	c.output.SetBorderColor(th.Color(theme.ThemeBorder))
	c.output.SetTitle(" " + c.opts.Role + " ")

	c.input = tview.NewInputField()
	c.input.SetLabel("[::b]> ")
	c.input.SetLabelColor(th.Color(theme.ThemeInput))
	c.input.SetFieldTextColor(th.Color(theme.ThemeInput))
	c.input.SetBackgroundColor(th.Color(theme.ThemeBackground))
	c.input.SetFieldBackgroundColor(th.Color(theme.ThemeBackground))

	c.status = tview.NewTextView()
	c.status.SetDynamicColors(true)
	c.status.SetBackgroundColor(th.Color(theme.ThemeBackground))

	c.help = tview.NewTextView()
	c.help.SetDynamicColors(true)
	c.help.SetBackgroundColor(th.Color(theme.ThemeBackground))
	c.help.SetText(th.Wrap(theme.ThemeStatusInfo, tview.Escape(c.opts.Keybindings.Help()), "::d"))

	return tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.output, 0, 1, false).
		AddItem(c.input, 1, 0, true).
		AddItem(c.status, 1, 0, false).
		AddItem(c.help, 1, 0, false)
}

func (c *Console) inputCapture(event *tcell.EventKey) *tcell.EventKey {
	switch c.opts.Keybindings.Key(event) {
	case keybindings.KeySend:
		text := c.input.GetText()
		c.input.SetText("")

		if text != "" {
			go c.send(text)
		}

	case keybindings.KeyQuit:
		c.app.Stop()

	case keybindings.KeyDisconnect:
		go func() {
			if err := c.link.Close(); err != nil {
				c.setMessage(err)
				return
			}

			c.setMessage(nil)
		}()

	case keybindings.KeyClear:
		c.output.Clear()

	case keybindings.KeyToggleHex:
		c.hexView.Toggle()

	case keybindings.KeySuspend:
		suspend(c.app)

	case keybindings.KeyScrollUp, keybindings.KeyScrollDown:
		c.output.InputHandler()(event, nil)

	default:
		return event
	}

	return nil
}

func (c *Console) send(text string) {
	if _, err := c.link.Write([]byte(text + "\n")); err != nil {
		c.opts.Logger.Warn("Cannot send text", zap.Error(err))
		c.setMessage(err)

		return
	}

	c.app.QueueUpdateDraw(func() {
		fmt.Fprintln(c.output, c.opts.Theme.Wrap(theme.ThemeSent, tview.Escape(text), "::-"))
	})
}

// receive moves bytes from the link into the output view.
func (c *Console) receive(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
		}

		count, err := c.link.Available()
		if err != nil || count == 0 {
			continue
		}

		data, err := c.link.ReceiveBinary(count)
		if err != nil {
			if !errors.Is(err, pipe.ErrNoData) {
				c.opts.Logger.Warn("Cannot receive data", zap.Error(err))
			}

			continue
		}

		text := c.format(data)
		c.app.QueueUpdateDraw(func() {
			fmt.Fprint(c.output, text)
		})
	}
}

func (c *Console) format(data []byte) string {
	if c.hexView.Load() {
		return c.opts.Theme.Wrap(theme.ThemeReceived, tview.Escape(hex.Dump(data)), "::-")
	}

	return c.opts.Theme.Wrap(theme.ThemeReceived, tview.Escape(string(data)), "::-")
}

// watch refreshes the status line whenever the link reports a change,
// and at least once per second for the statistics.
func (c *Console) watch(ctx context.Context) {
	sub := c.link.Notifier().Subscribe(
		spp.TopicState,
		spp.TopicAuth,
		spp.TopicCongestion,
		spp.TopicDropped,
	)
	defer sub.Unsubscribe()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	c.refreshStatus()

	for {
		select {
		case <-ctx.Done():
			return

		case note, ok := <-sub.C:
			if !ok {
				return
			}

			if note.Topic == spp.TopicAuth && note.Status != 0 {
				c.message.Store("Authentication failed: " + note.Status.String())
			}

			if note.Topic == spp.TopicState && note.State == "open" {
				line := c.peerLine()
				c.app.QueueUpdateDraw(func() {
					fmt.Fprintln(c.output, line)
				})
			}

			c.refreshStatus()

		case <-ticker.C:
			c.refreshStatus()
		}
	}
}

// peerLine announces a newly opened channel.
func (c *Console) peerLine() string {
	text := "Connected"
	if peer, ok := c.link.Connection().Peer(); ok {
		text += " to " + peer.String()
	}

	return c.opts.Theme.Wrap(theme.ThemePeer, tview.Escape(text))
}

func (c *Console) setMessage(err error) {
	if err == nil {
		c.message.Store("")
	} else {
		c.message.Store("Error: " + err.Error())
	}

	c.refreshStatus()
}

func (c *Console) refreshStatus() {
	line := c.statusLine()
	color := c.stateColor()
	message := c.message.Load()

	c.app.QueueUpdateDraw(func() {
		_, _, width, _ := c.status.GetInnerRect()
		if width <= 0 {
			width = runewidth.StringWidth(line)
		}

		text := c.opts.Theme.Wrap(color, tview.Escape(runewidth.Truncate(line, width, "...")))
		if message != "" {
			remaining := width - runewidth.StringWidth(line) - 3
			if remaining > 0 {
				text += " | " + c.opts.Theme.Highlight(theme.ThemeStatusError, tview.Escape(runewidth.Truncate(message, remaining, "...")))
			}
		}

		c.status.SetText(text)
	})
}

// statusLine describes the link state, the peer and the transfer counters.
func (c *Console) statusLine() string {
	var sb strings.Builder

	sb.WriteString(c.link.StateTitle())

	conn := c.link.Connection()
	if peer, ok := conn.Peer(); ok {
		sb.WriteString(" | ")
		sb.WriteString(peer.String())
	}

	if conn.Authenticated() {
		sb.WriteString(" | paired")
	}
	if conn.Congested() {
		sb.WriteString(" | congested")
	}

	stats := c.link.Stats()
	fmt.Fprintf(&sb, " | rx %d B, tx %d, dropped %d B", stats.BytesReceived, stats.PayloadsWritten, stats.BytesDropped)

	if c.hexView.Load() {
		sb.WriteString(" | hex")
	}

	return sb.String()
}

func (c *Console) stateColor() theme.Context {
	switch {
	case c.link.Ready():
		return theme.ThemeStateOpen

	case c.link.StateTitle() != "Idle":
		return theme.ThemeStateBusy
	}

	return theme.ThemeStateIdle
}
