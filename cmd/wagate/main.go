package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/config"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/adminapi"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/app"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/webserver"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/whatsapp"
)

var version = "develop"

var (
	h        = flag.Bool("h", false, "help usage")
	showVer  = flag.Bool("v", false, "show version")
	conffile = flag.String("c", "", "config yaml file")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version)
		return
	}
	if *h {
		flag.Usage()
		return
	}

	cfg, err := config.LoadConfig(*conffile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config error: %s\n", err.Error())
		os.Exit(1)
	}

	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	svc := whatsapp.New(application)
	server := webserver.Init(cfg)
	adminapi.Init(svc, cfg.Web.StartTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	go func() {
		n, err := svc.RestoreAll(ctx)
		if err != nil {
			zap.L().Error("main: restore sessions", zap.Error(err))
		}
		zap.L().Info("main: restored sessions", zap.Int("count", n))
	}()

	select {
	case <-ctx.Done():
		zap.L().Info("main: shutting down")
	case err := <-serveErr:
		if err != nil {
			zap.L().Error("main: webserver stopped", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("main: webserver shutdown", zap.Error(err))
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("main: session shutdown", zap.Error(err))
	}
}
