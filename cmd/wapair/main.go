// Command wapair pairs a single session directory from a terminal, without
// the control API. The session is picked up by wagate on its next start.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"

	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/config"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/credstore"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/domain"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/messaging"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/whatsapp"
)

var (
	conffile = flag.String("c", "", "config yaml file")
	name     = flag.String("s", "", "session name")
	timeout  = flag.Duration("t", 3*time.Minute, "pairing timeout")
)

func main() {
	flag.Parse()
	if err := domain.ValidateSessionName(*name); err != nil {
		fmt.Fprintln(os.Stderr, "usage: wapair -s <session name> [-c config.yml]")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*conffile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config error: %s\n", err.Error())
		os.Exit(1)
	}
	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)
	defer logger.Sync() //nolint:errcheck

	if err := pair(cfg, *name, *timeout); err != nil {
		zap.S().Errorf("pair %s error %s", *name, err.Error())
		os.Exit(1)
	}
}

func pair(cfg *config.AppConfig, identity string, wait time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	waLogger := messaging.NewZapLogger("wapair", cfg.WhatsApp.LogLevel)
	creds := credstore.NewManager(cfg.GetSessionsDir(), waLogger.Sub("Database"))
	st, err := creds.Load(ctx, identity)
	if err != nil {
		return err
	}
	defer st.Close()

	client := whatsmeow.NewClient(st.Device(), waLogger.Sub("Client"))
	done := make(chan struct{}, 1)
	client.AddEventHandler(func(evt interface{}) {
		switch e := evt.(type) {
		case *events.PairSuccess:
			zap.L().Info("wapair: paired", zap.String("jid", e.ID.String()))
		case *events.Connected:
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return err
		}
		if err := client.Connect(); err != nil {
			return err
		}
		go func() {
			for item := range qrChan {
				switch item.Event {
				case whatsmeow.QRChannelEventCode:
					fmt.Println("Scan this QR code with WhatsApp:")
					whatsapp.PrintTerminalQR(os.Stdout, item.Code)
				case whatsmeow.QRChannelEventError:
					zap.L().Warn("wapair: qr channel error", zap.Error(item.Error))
				default:
					zap.L().Info("wapair: qr channel", zap.String("event", item.Event))
				}
			}
		}()
	} else if err := client.Connect(); err != nil {
		return err
	}
	defer client.Disconnect()

	select {
	case <-done:
		fmt.Printf("Session %s connected as %s\n", identity, client.Store.ID)
		return st.Save(context.Background())
	case <-ctx.Done():
		return ctx.Err()
	}
}
