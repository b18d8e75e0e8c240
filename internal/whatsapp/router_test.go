package whatsapp

import (
	"reflect"
	"testing"

	"go.mau.fi/whatsmeow/types"
)

func TestDerivePrefix(t *testing.T) {
	cases := []struct {
		body, prefix, rest string
	}{
		{"#kick @user", "#", "kick @user"},
		{"!ping", "!", "ping"},
		{"/help", "/", "help"},
		{".sticker", ".", "sticker"},
		{"=stats", "=", "stats"},
		{"hello there", "#", ""},
		{"", "#", ""},
		{"kick #user", "#", ""},
	}
	for _, c := range cases {
		prefix, rest := derivePrefix(c.body, "#")
		if prefix != c.prefix || rest != c.rest {
			t.Errorf("derivePrefix(%q) = (%q, %q), want (%q, %q)",
				c.body, prefix, rest, c.prefix, c.rest)
		}
	}
}

func TestSplitInvocation(t *testing.T) {
	name, text, args := splitInvocation("kick  @user  now")
	if name != "kick" {
		t.Errorf("name = %q", name)
	}
	if text != "@user  now" {
		t.Errorf("text = %q", text)
	}
	if !reflect.DeepEqual(args, []string{"@user", "now"}) {
		t.Errorf("args = %v", args)
	}

	name, text, args = splitInvocation("ping")
	if name != "ping" || text != "" || len(args) != 0 {
		t.Errorf("bare command parsed as (%q, %q, %v)", name, text, args)
	}

	if name, _, _ := splitInvocation("   "); name != "" {
		t.Errorf("whitespace body produced a name: %q", name)
	}
}

func TestRenderGreeting(t *testing.T) {
	user := types.NewJID("628111", types.DefaultUserServer)
	got := renderGreeting("Welcome to @subj, @user!\n@desc", user, "Go Devs", "Be kind")
	want := "Welcome to Go Devs, @628111!\nBe kind"
	if got != want {
		t.Errorf("renderGreeting = %q, want %q", got, want)
	}
}

func TestFormatMessage(t *testing.T) {
	in := "## Title\n\n**bold** and ~~gone~~ plus [site](https://x.dev)"
	got := FormatMessage(in)
	want := "*Title*\n\n*bold* and ~gone~ plus site (https://x.dev)"
	if got != want {
		t.Errorf("FormatMessage = %q, want %q", got, want)
	}
}

func TestSplitMessage(t *testing.T) {
	if got := SplitMessage("short", 100); len(got) != 1 || got[0] != "short" {
		t.Errorf("SplitMessage short = %v", got)
	}

	long := "aaaa\nbbbb\ncccc"
	chunks := SplitMessage(long, 10)
	if len(chunks) < 2 {
		t.Fatalf("long text not split: %v", chunks)
	}
	joined := ""
	for _, c := range chunks {
		if len(c) > 10 {
			t.Errorf("chunk too long: %q", c)
		}
		joined += c
	}
	if joined != long {
		t.Errorf("chunks lose content: %q", joined)
	}
}
