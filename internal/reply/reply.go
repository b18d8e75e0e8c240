// Package reply holds the bot's user-facing response texts. Every refusal
// or prompt the dispatch engine sends comes from this table, so operators
// can localize the bot by dropping a replies.json next to the database.
package reply

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	. "github.com/ahmadsysdev/wabot/internal/logging"
)

// Table is the full set of response templates. Placeholders: @user for the
// sender mention, @cmd for the command name, @sec for a second count,
// @usage for the usage string.
type Table struct {
	GroupOnly        string `json:"group_only"`
	PrivateOnly      string `json:"private_only"`
	AdminOnly        string `json:"admin_only"`
	BotAdminNeeded   string `json:"bot_admin_needed"`
	DevOnly          string `json:"dev_only"`
	OwnerOnly        string `json:"owner_only"`
	PremiumOnly      string `json:"premium_only"`
	ProfessionalOnly string `json:"professional_only"`
	Locked           string `json:"locked"`
	Cooldown         string `json:"cooldown"`
	LimitReached     string `json:"limit_reached"`
	NeedQuery        string `json:"need_query"`
	NeedQuoted       string `json:"need_quoted"`
	NeedMedia        string `json:"need_media"`
	NeedOption       string `json:"need_option"`
	NeedMention      string `json:"need_mention"`
	BadFormat        string `json:"bad_format"`
	Wait             string `json:"wait"`
	CommandError     string `json:"command_error"`
	Welcome          string `json:"welcome"`
	Leave            string `json:"leave"`
	CallWarning      string `json:"call_warning"`
	CallBlocked      string `json:"call_blocked"`
	Deleted          string `json:"deleted"`
}

// Defaults returns the built-in english table.
func Defaults() Table {
	return Table{
		GroupOnly:        "This command can only be used in groups.",
		PrivateOnly:      "This command can only be used in private chat.",
		AdminOnly:        "This command is restricted to group admins.",
		BotAdminNeeded:   "I need to be a group admin to do that.",
		DevOnly:          "This command is restricted to my developers.",
		OwnerOnly:        "This command is restricted to my owner.",
		PremiumOnly:      "This command is for premium users. Ask the owner for access.",
		ProfessionalOnly: "This command is for professional users. Ask the owner for access.",
		Locked:           "The @cmd command is temporarily disabled.",
		Cooldown:         "Slow down, try again in @sec seconds.",
		LimitReached:     "You have reached your daily usage limit.",
		NeedQuery:        "Usage: @usage",
		NeedQuoted:       "Reply to a message to use this command.",
		NeedMedia:        "Send or reply to a matching media message within 30 seconds.",
		NeedOption:       "Pick one of the available options within 30 seconds.",
		NeedMention:      "Tag someone or reply to their message.",
		BadFormat:        "That doesn't look right. Check the format and try again.",
		Wait:             "Hold on, working on it...",
		CommandError:     "Sorry, something went wrong.\nError: @err",
		Welcome:          "Welcome to @subj, @user!",
		Leave:            "Goodbye, @user.",
		CallWarning:      "I can't take calls. Calling again will get you blocked.",
		CallBlocked:      "You were warned. Blocking you now.",
		Deleted:          "@user deleted this message:",
	}
}

// Manager serves the current table and hot-reloads the override file when
// it changes on disk.
type Manager struct {
	path  string
	mu    sync.RWMutex
	table Table
}

// NewManager loads the override file at path (if present) over the
// defaults. A missing file is not an error.
func NewManager(path string) *Manager {
	m := &Manager{path: path}
	m.load()
	return m
}

// Get returns the current table snapshot.
func (m *Manager) Get() Table {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table
}

func (m *Manager) load() {
	table := Defaults()
	data, err := os.ReadFile(m.path)
	if err == nil {
		if err := json.Unmarshal(data, &table); err != nil {
			L_error("reply: failed to parse override file, using defaults", "path", m.path, "error", err)
			table = Defaults()
		} else {
			L_info("reply: loaded overrides", "path", m.path)
		}
	} else if !os.IsNotExist(err) {
		L_warn("reply: failed to read override file", "path", m.path, "error", err)
	}

	m.mu.Lock()
	m.table = table
	m.mu.Unlock()
}

// Watch reloads the table whenever the override file changes. Editors
// replace files by rename, so we watch the parent directory. Blocks until
// the watcher fails; run it in a goroutine.
func (m *Manager) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		return err
	}
	L_debug("reply: watching for changes", "path", m.path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				L_info("reply: override file changed, reloading")
				m.load()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			L_warn("reply: watcher error", "error", err)
		}
	}
}
