package whatsapp

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/ahmadsysdev/wabot/internal/paths"
)

// LinkDevice pairs a new WhatsApp device over a terminal QR code and
// blocks until the scan and initial sync complete.
func LinkDevice() error {
	dbPath, err := paths.DataPath("whatsapp.db")
	if err != nil {
		return fmt.Errorf("failed to resolve db path: %w", err)
	}
	container, err := openContainer(dbPath)
	if err != nil {
		return err
	}

	// Stale devices from earlier pairing attempts would be returned by
	// GetFirstDevice and 401 on connect, so clear them out first.
	oldDevices, err := container.GetAllDevices(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list existing devices: %w", err)
	}
	for _, d := range oldDevices {
		jid := "(unknown)"
		if d.ID != nil {
			jid = d.ID.String()
		}
		fmt.Printf("Removing stale device: %s\n", jid)
		_ = d.Delete(context.Background())
	}

	client := whatsmeow.NewClient(container.NewDevice(), &wabotLogger{module: "client"})

	fmt.Println("Scan the QR code below with your WhatsApp app:")
	fmt.Println("  WhatsApp > Settings > Linked Devices > Link a Device")
	fmt.Println()

	err = pairWithQR(client, func(code string) {
		qrterminal.GenerateHalfBlock(code, qrterminal.L, os.Stdout)
		fmt.Println()
		fmt.Println("Waiting for scan...")
	})
	if err != nil {
		return err
	}

	fmt.Printf("Paired successfully! JID: %s\n", client.Store.ID)
	fmt.Println("You can now start the bot with 'wabot'.")
	client.Disconnect()
	return nil
}

// pairWithQR runs the QR pairing flow, calling onCode for every fresh
// code, and returns once the client is fully connected and synced. The
// QR "success" event only means the scan was accepted; disconnecting
// before Connected fires leaves the pairing incomplete.
func pairWithQR(client *whatsmeow.Client, onCode func(code string)) error {
	connectedCh := make(chan struct{}, 1)
	client.AddEventHandler(func(evt interface{}) {
		if _, ok := evt.(*events.Connected); ok {
			select {
			case connectedCh <- struct{}{}:
			default:
			}
		}
	})

	qrChan, err := client.GetQRChannel(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get QR channel: %w", err)
	}
	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	for item := range qrChan {
		switch item.Event {
		case "code":
			onCode(item.Code)
		case "success":
			select {
			case <-connectedCh:
				return nil
			case <-time.After(30 * time.Second):
				client.Disconnect()
				return fmt.Errorf("timed out waiting for initial sync, try again")
			}
		case "timeout":
			client.Disconnect()
			return fmt.Errorf("QR code expired, run the command again")
		default:
			client.Disconnect()
			return fmt.Errorf("pairing failed: %s", item.Event)
		}
	}

	client.Disconnect()
	return fmt.Errorf("QR channel closed unexpectedly")
}

// UnlinkDevice removes the stored WhatsApp session, requiring re-pairing.
func UnlinkDevice() error {
	dbPath, err := paths.DataPath("whatsapp.db")
	if err != nil {
		return fmt.Errorf("failed to resolve db path: %w", err)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no WhatsApp session found (no %s)", dbPath)
	}

	container, err := openContainer(dbPath)
	if err != nil {
		return err
	}
	devices, err := container.GetAllDevices(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	if len(devices) == 0 {
		return fmt.Errorf("no paired devices found")
	}

	for _, device := range devices {
		jid := "(unknown)"
		if device.ID != nil {
			jid = device.ID.String()
		}
		if err := device.Delete(context.Background()); err != nil {
			return fmt.Errorf("failed to delete device %s: %w", jid, err)
		}
		fmt.Printf("Removed device: %s\n", jid)
	}

	fmt.Println("WhatsApp session cleared. Run 'wabot link' to re-pair.")
	return nil
}
