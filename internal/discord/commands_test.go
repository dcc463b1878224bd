package discord

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Gorillas-Team/Gorilink/internal/audio"
	"github.com/Gorillas-Team/Gorilink/internal/database"
	"github.com/Gorillas-Team/Gorilink/internal/music"
	"github.com/Gorillas-Team/Gorilink/internal/permissions"
	"github.com/Gorillas-Team/Gorilink/internal/queue"
	"github.com/Gorillas-Team/Gorilink/internal/radio"
	"github.com/Gorillas-Team/Gorilink/internal/voice"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		content string
		name    string
		args    []string
		ok      bool
	}{
		{"!play never gonna", "play", []string{"never", "gonna"}, true},
		{"!PLAY x", "play", []string{"x"}, true},
		{"!skip", "skip", []string{}, true},
		{"!", "", nil, false},
		{"play x", "", nil, false},
		{"", "", nil, false},
	}

	for _, tt := range tests {
		name, args, ok := ParseCommand("!", tt.content)
		if ok != tt.ok || name != tt.name {
			t.Errorf("ParseCommand(%q) = %q, %v; want %q, %v", tt.content, name, ok, tt.name, tt.ok)
			continue
		}
		if ok && !reflect.DeepEqual(args, tt.args) {
			t.Errorf("ParseCommand(%q) args = %v, want %v", tt.content, args, tt.args)
		}
	}
}

type echoCommand struct {
	args []string
	err  error
}

func (c *echoCommand) Name() string        { return "echo" }
func (c *echoCommand) Description() string { return "Echo the arguments" }

func (c *echoCommand) Execute(ctx *Context) error {
	c.args = ctx.Args
	ctx.Reply(strings.Join(ctx.Args, " "))
	return c.err
}

func testContext(replies *[]string) *Context {
	return &Context{
		GuildID:  "g1",
		AuthorID: "u1",
		reply: func(content string) error {
			*replies = append(*replies, content)
			return nil
		},
	}
}

func TestRouterHandle(t *testing.T) {
	var replies []string
	cmd := &echoCommand{err: errors.New("logged, not returned")}
	r := NewCommandRouter("?")
	r.Register(cmd)

	if !r.Handle(testContext(&replies), "?echo a b") {
		t.Fatal("Handle() did not match echo")
	}
	if !reflect.DeepEqual(cmd.args, []string{"a", "b"}) {
		t.Errorf("args = %v", cmd.args)
	}
	if len(replies) != 1 || replies[0] != "a b" {
		t.Errorf("replies = %v", replies)
	}

	if r.Handle(testContext(&replies), "?unknown") {
		t.Error("Handle() matched an unknown command")
	}
	if r.Handle(testContext(&replies), "!echo") {
		t.Error("Handle() matched the wrong prefix")
	}
}

func TestRouterChecksPermissions(t *testing.T) {
	manager, _ := music.New(func(voice.Update) error { return nil }, music.Options{})
	r := NewCommandRouter("!")
	registerMusicCommands(r, &Client{Manager: manager})

	var asked []permissions.Level
	r.SetAuthorizer(func(ctx *Context, level permissions.Level) (bool, error) {
		asked = append(asked, level)
		return false, nil
	})

	var replies []string
	r.Handle(testContext(&replies), "!stop")
	if len(replies) != 1 || replies[0] != "❌ You need DJ permissions to use this command." {
		t.Errorf("replies = %v", replies)
	}

	// Unrestricted commands skip the check.
	replies = nil
	r.Handle(testContext(&replies), "!queue")
	if len(asked) != 1 || asked[0] != permissions.LevelDJ {
		t.Errorf("authorizer calls = %v", asked)
	}
	if len(replies) != 1 || replies[0] != "📭 Queue is empty." {
		t.Errorf("replies = %v", replies)
	}
}

func TestCommandsWithoutPlayer(t *testing.T) {
	manager, err := music.New(func(voice.Update) error { return nil }, music.Options{})
	if err != nil {
		t.Fatalf("music.New() error = %v", err)
	}

	r := NewCommandRouter("!")
	registerMusicCommands(r, &Client{Manager: manager})

	tests := []struct {
		content string
		want    string
	}{
		{"!skip", errNoPlayer},
		{"!pause", errNoPlayer},
		{"!resume", errNoPlayer},
		{"!volume 50", errNoPlayer},
		{"!loop all", errNoPlayer},
		{"!np", errNoPlayer},
		{"!queue", "📭 Queue is empty."},
		{"!leave", "❌ Not in a voice channel."},
		{"!play", "❌ Usage: `play <url or search>`"},
		{"!top", "❌ Play history is disabled."},
	}

	for _, tt := range tests {
		var replies []string
		if !r.Handle(testContext(&replies), tt.content) {
			t.Errorf("%s: no command matched", tt.content)
			continue
		}
		if len(replies) != 1 || replies[0] != tt.want {
			t.Errorf("%s: replies = %v, want %q", tt.content, replies, tt.want)
		}
	}
}

func TestRadioStations(t *testing.T) {
	manager, _ := music.New(func(voice.Update) error { return nil }, music.Options{})

	var replies []string
	empty := NewCommandRouter("!")
	registerMusicCommands(empty, &Client{Manager: manager})
	empty.Handle(testContext(&replies), "!radio")
	if len(replies) != 1 || replies[0] != "📻 No radio stations are configured." {
		t.Errorf("replies = %v", replies)
	}

	r := NewCommandRouter("!")
	registerMusicCommands(r, &Client{
		Manager: manager,
		Stations: radio.NewStations([]radio.Station{
			{Name: "Lofi", URL: "https://example.com/lofi"},
			{Name: "Jazz", URL: "https://example.com/jazz"},
		}),
	})

	replies = nil
	r.Handle(testContext(&replies), "!radio")
	r.Handle(testContext(&replies), "!radio metal")
	want := []string{
		"📻 Stations: Lofi, Jazz",
		"❌ Unknown station. Stations: Lofi, Jazz",
	}
	if !reflect.DeepEqual(replies, want) {
		t.Errorf("replies = %v, want %v", replies, want)
	}
}

func TestHelpListsCommands(t *testing.T) {
	manager, _ := music.New(func(voice.Update) error { return nil }, music.Options{})
	r := NewCommandRouter("!")
	registerMusicCommands(r, &Client{Manager: manager})

	var replies []string
	r.Handle(testContext(&replies), "!help")
	if len(replies) != 1 {
		t.Fatalf("replies = %v", replies)
	}
	for _, name := range []string{"play", "skip", "stop", "pause", "resume", "volume", "loop", "queue", "np", "leave"} {
		if !strings.Contains(replies[0], "`!"+name+"`") {
			t.Errorf("help is missing %s", name)
		}
	}
}

func TestFormatQueue(t *testing.T) {
	if got := formatQueue(nil, 0); got != "📭 Queue is empty." {
		t.Errorf("empty queue = %q", got)
	}

	q := queue.New()
	q.Add(audio.Track{Title: "First", Author: "A", Duration: 3 * time.Minute})
	for range 12 {
		q.Add(audio.Track{Title: "Next", Duration: time.Minute})
	}

	got := formatQueue(q.Items(), q.Duration())
	if !strings.Contains(got, "**Now Playing:** A - First (3:00)") {
		t.Errorf("missing now playing line:\n%s", got)
	}
	if !strings.Contains(got, "2. Next (1:00)") {
		t.Errorf("missing first upcoming line:\n%s", got)
	}
	if !strings.Contains(got, "...and 2 more") {
		t.Errorf("missing overflow line:\n%s", got)
	}
	if !strings.Contains(got, "Total: 15:00") {
		t.Errorf("missing total:\n%s", got)
	}
}

func TestFormatTop(t *testing.T) {
	if got := formatTop(nil); got != "📭 Nothing has been played yet." {
		t.Errorf("empty history = %q", got)
	}

	got := formatTop([]database.PlayedTrack{
		{Track: audio.Track{Title: "A", Author: "X"}, PlayCount: 3},
		{Track: audio.Track{Title: "B"}, PlayCount: 1},
	})
	want := "🏆 **Most Played**\n1. X - A (3 plays)\n2. B (1 plays)\n"
	if got != want {
		t.Errorf("formatTop() = %q, want %q", got, want)
	}
}
