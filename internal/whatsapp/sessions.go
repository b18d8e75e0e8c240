package whatsapp

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"

	. "github.com/ahmadsysdev/wabot/internal/logging"
	"github.com/ahmadsysdev/wabot/internal/paths"
	"github.com/ahmadsysdev/wabot/internal/store"
)

// rentedSessions tracks the extra paired devices created by the rent
// command so shutdown can disconnect them.
type rentedSessions struct {
	mu      sync.Mutex
	clients map[string]*whatsmeow.Client
}

func newRentedSessions() *rentedSessions {
	return &rentedSessions{clients: make(map[string]*whatsmeow.Client)}
}

func (r *rentedSessions) add(id string, c *whatsmeow.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[id] = c
}

func (r *rentedSessions) stopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		L_info("whatsapp: disconnecting rented session", "session", id)
		c.Disconnect()
	}
	r.clients = make(map[string]*whatsmeow.Client)
}

// RentSession pairs an additional device for the renter. Each fresh QR
// code is rendered to PNG and sent to the renter's chat; the call blocks
// until pairing completes or the code expires.
func (b *Bot) RentSession(ctx context.Context, renter types.JID) error {
	dir, err := paths.SessionsDir()
	if err != nil {
		return err
	}
	id := uuid.NewString()
	dbPath := filepath.Join(dir, id+".db")
	container, err := openContainer(dbPath)
	if err != nil {
		return err
	}
	client := whatsmeow.NewClient(container.NewDevice(), &wabotLogger{module: "rent/" + id[:8]})

	err = pairWithQR(client, func(code string) {
		png, err := qrcode.Encode(code, qrcode.Medium, 512)
		if err != nil {
			L_error("whatsapp: failed to render rent QR", "error", err)
			return
		}
		if _, err := b.SendMedia(ctx, renter, png, "Scan within 60 seconds to pair your session."); err != nil {
			L_warn("whatsapp: failed to send rent QR", "renter", renter.String(), "error", err)
		}
	})
	if err != nil {
		os.Remove(dbPath)
		return err
	}

	jid := ""
	if client.Store.ID != nil {
		jid = client.Store.ID.String()
	}
	rec := store.Record{
		"id":     id,
		"renter": renter.ToNonAD().String(),
		"jid":    jid,
		"file":   dbPath,
	}
	if err := b.db.Modified("sessions", rec); err != nil {
		L_warn("whatsapp: failed to record rented session", "session", id, "error", err)
	}
	b.rented.add(id, client)
	L_info("whatsapp: rented session paired", "session", id, "jid", jid)
	return nil
}

// reconnectRented brings recorded rented sessions back online after a
// restart. Sessions whose device store is gone are dropped from the
// collection.
func (b *Bot) reconnectRented() {
	records, err := b.db.Read("sessions")
	if err != nil {
		L_warn("whatsapp: failed to read rented sessions", "error", err)
		return
	}
	for _, rec := range records {
		id := rec.Str("id")
		file := rec.Str("file")
		if _, err := os.Stat(file); err != nil {
			L_warn("whatsapp: rented session store missing, dropping", "session", id)
			b.db.Delete("sessions", id, "id")
			continue
		}
		container, err := openContainer(file)
		if err != nil {
			L_warn("whatsapp: failed to open rented session", "session", id, "error", err)
			continue
		}
		device, err := container.GetFirstDevice(context.Background())
		if err != nil || device == nil || device.ID == nil {
			L_warn("whatsapp: rented session not paired, dropping", "session", id)
			b.db.Delete("sessions", id, "id")
			continue
		}
		client := whatsmeow.NewClient(device, &wabotLogger{module: "rent/" + id[:8]})
		if err := client.Connect(); err != nil {
			L_warn("whatsapp: failed to reconnect rented session", "session", id, "error", err)
			continue
		}
		b.rented.add(id, client)
		L_info("whatsapp: rented session reconnected", "session", id, "jid", device.ID.String())
	}
}
