package whatsapp

import (
	"go.mau.fi/whatsmeow/types/events"

	. "github.com/ahmadsysdev/wabot/internal/logging"
	"github.com/ahmadsysdev/wabot/internal/store"
)

// handleCallOffer warns a caller once and blocks on the second offense.
// Group calls are left alone.
func (b *Bot) handleCallOffer(evt *events.CallOffer) {
	caller := evt.CallCreator
	if caller.IsEmpty() || evt.From.Server != caller.Server {
		return
	}

	ctx := b.ctx
	id := caller.ToNonAD().String()
	t := b.replies.Get()

	rec, warned := b.db.Check("calls", id, "id")
	if !warned {
		if _, err := b.SendText(ctx, caller.ToNonAD(), t.CallWarning); err != nil {
			L_warn("whatsapp: failed to send call warning", "caller", id, "error", err)
		}
		if err := b.db.Modified("calls", store.Record{"id": id, "count": float64(1)}); err != nil {
			L_warn("whatsapp: failed to record call", "caller", id, "error", err)
		}
		return
	}

	L_info("whatsapp: blocking repeat caller", "caller", id, "calls", rec.Num("count")+1)
	if _, err := b.SendText(ctx, caller.ToNonAD(), t.CallBlocked); err != nil {
		L_warn("whatsapp: failed to send block notice", "caller", id, "error", err)
	}
	if err := b.Block(ctx, caller.ToNonAD()); err != nil {
		L_warn("whatsapp: failed to block caller", "caller", id, "error", err)
	}
	rec["count"] = rec.Num("count") + 1
	if err := b.db.Upsert("calls", rec, id, "id"); err != nil {
		L_warn("whatsapp: failed to update call record", "caller", id, "error", err)
	}
}
