// Package whatsapp is the protocol layer: it owns the whatsmeow client,
// normalizes inbound events, and feeds the dispatch engine.
package whatsapp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/ahmadsysdev/wabot/internal/command"
	"github.com/ahmadsysdev/wabot/internal/config"
	"github.com/ahmadsysdev/wabot/internal/dispatch"
	"github.com/ahmadsysdev/wabot/internal/entitlement"
	. "github.com/ahmadsysdev/wabot/internal/logging"
	"github.com/ahmadsysdev/wabot/internal/paths"
	"github.com/ahmadsysdev/wabot/internal/reply"
	"github.com/ahmadsysdev/wabot/internal/store"
)

// wabotLogger bridges whatsmeow's waLog.Logger to our L_* functions
type wabotLogger struct {
	module string
}

func (l *wabotLogger) Debugf(msg string, args ...interface{}) {
	L_debug(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *wabotLogger) Infof(msg string, args ...interface{}) {
	L_info(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *wabotLogger) Warnf(msg string, args ...interface{}) {
	L_warn(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *wabotLogger) Errorf(msg string, args ...interface{}) {
	L_error(fmt.Sprintf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...)))
}

func (l *wabotLogger) Sub(module string) waLog.Logger {
	return &wabotLogger{module: l.module + "/" + module}
}

// Bot ties the whatsmeow client to the command registry and dispatch
// engine.
type Bot struct {
	client    *whatsmeow.Client
	container *sqlstore.Container

	cfg      *config.Config
	registry *command.Registry
	db       *store.Store
	ent      *entitlement.Service
	replies  *reply.Manager
	session  *dispatch.Session
	engine   *dispatch.Engine

	rented *rentedSessions

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// New opens the paired device and wires the dispatch engine. Pairing must
// have happened already ('wabot link').
func New(cfg *config.Config, registry *command.Registry, db *store.Store,
	ent *entitlement.Service, replies *reply.Manager) (*Bot, error) {

	dbPath, err := paths.DataPath("whatsapp.db")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve whatsapp db path: %w", err)
	}

	container, err := openContainer(dbPath)
	if err != nil {
		return nil, err
	}

	device, err := container.GetFirstDevice(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get whatsapp device: %w", err)
	}
	if device == nil || device.ID == nil {
		return nil, fmt.Errorf("no whatsapp device paired, run 'wabot link' first")
	}

	clientLog := &wabotLogger{module: "client"}
	client := whatsmeow.NewClient(device, clientLog)

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bot{
		client:    client,
		container: container,
		cfg:       cfg,
		registry:  registry,
		db:        db,
		ent:       ent,
		replies:   replies,
		session:   dispatch.NewSession(),
		rented:    newRentedSessions(),
		ctx:       ctx,
		cancel:    cancel,
	}
	b.engine = dispatch.NewEngine(dispatch.Deps{
		Config:       cfg,
		Session:      b.session,
		Store:        db,
		Entitlements: ent,
		Replies:      replies,
		Send:         b,
		Groups:       b,
	})
	return b, nil
}

// Engine exposes the dispatch engine, mainly for the lock/unlock and
// stats commands.
func (b *Bot) Engine() *dispatch.Engine { return b.engine }

// Session exposes the interaction state.
func (b *Bot) Session() *dispatch.Session { return b.session }

// Store exposes the JSON collection store for feature handlers.
func (b *Bot) Store() *store.Store { return b.db }

// Entitlements exposes the tier service.
func (b *Bot) Entitlements() *entitlement.Service { return b.ent }

// Config returns the active configuration.
func (b *Bot) Config() *config.Config { return b.cfg }

// Registry returns the command registry.
func (b *Bot) Registry() *command.Registry { return b.registry }

// Start connects and begins processing events.
func (b *Bot) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}

	b.client.AddEventHandler(b.handleEvent)

	if err := b.client.Connect(); err != nil {
		return fmt.Errorf("whatsapp: failed to connect: %w", err)
	}

	b.running = true
	b.startedAt = time.Now()
	L_info("whatsapp: connected", "jid", b.client.Store.ID)

	go b.reconnectRented()
	return nil
}

// Stop disconnects and tears down rented sessions.
func (b *Bot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}
	L_info("whatsapp: disconnecting")
	b.cancel()
	b.rented.stopAll()
	b.client.Disconnect()
	b.running = false
}

// StartedAt reports when the bot connected.
func (b *Bot) StartedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.startedAt
}

func (b *Bot) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		b.handleMessage(v)
	case *events.CallOffer:
		b.handleCallOffer(v)
	case *events.GroupInfo:
		b.handleGroupInfo(v)
	case *events.Connected:
		L_info("whatsapp: connected to server")
	case *events.Disconnected:
		L_warn("whatsapp: disconnected from server")
	case *events.LoggedOut:
		L_error("whatsapp: logged out, re-pair with 'wabot link'", "reason", v.Reason)
	}
}
