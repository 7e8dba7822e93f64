package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"

	"github.com/ggerganov/incppect"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "incppectd",
		Usage: "a standalone incppect host demonstrating the push engine with a counter and a blob getter",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port-listen",
				Usage: "TCP port to listen on",
				Value: 3000,
			},
			&cli.IntFlag{
				Name:  "max-payload-bytes",
				Usage: "soft limit on outbound frame size before a warning is logged",
				Value: 262144,
			},
			&cli.Int64Flag{
				Name:  "request-timeout",
				Usage: "default activity window, in milliseconds, installed by Poll/Refresh",
				Value: 3000,
			},
			&cli.IntFlag{
				Name:  "idle-timeout",
				Usage: "WebSocket idle timeout, in seconds, advertised to the transport",
				Value: 120,
			},
			&cli.StringFlag{
				Name:  "http-root",
				Usage: "directory to serve --resource files from",
				Value: ".",
			},
			&cli.StringSliceFlag{
				Name:  "resource",
				Usage: "a URL path (relative to '/') to serve as a static file from --http-root",
			},
			&cli.StringFlag{
				Name:  "ssl-key",
				Usage: "PEM key file; if set together with --ssl-cert, the listener uses TLS",
			},
			&cli.StringFlag{
				Name:  "ssl-cert",
				Usage: "PEM cert file; if set together with --ssl-key, the listener uses TLS",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable verbose per-message tracing",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx *cli.Context) error {
	logCfg := zap.NewDevelopmentConfig()
	if !ctx.Bool("debug") {
		logCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := logCfg.Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	params := incppect.DefaultParameters()
	params.PortListen = ctx.Int("port-listen")
	params.MaxPayloadBytes = ctx.Int("max-payload-bytes")
	params.TLastRequestTimeoutMs = ctx.Int64("request-timeout")
	params.TIdleTimeoutS = ctx.Int("idle-timeout")
	params.HTTPRoot = ctx.String("http-root")
	params.Resources = ctx.StringSlice("resource")
	params.SSLKey = ctx.String("ssl-key")
	params.SSLCert = ctx.String("ssl-cert")
	params.PrintDebug = ctx.Bool("debug")

	server := incppect.NewServer(
		incppect.WithParameters(params),
		incppect.WithLogger(logger),
		incppect.WithHandler(func(clientID int32, event incppect.EventType, data []byte) {
			logger.Sugar().Infow("incppect event", "ClientID", clientID, "Event", event.String(), "Data", string(data))
		}),
	)

	registerDemoGetters(server)

	serveCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		_ = server.Stop()
	}()

	return server.Run(serveCtx)
}

// registerDemoGetters installs a host-managed 4-byte counter and a
// 1024-byte blob: the counter exercises the full-update path, and the
// blob exercises the per-request diff path once its first full send
// is behind it.
func registerDemoGetters(server *incppect.Server) {
	var mu sync.Mutex
	var counter uint32
	blob := make([]byte, 1024)

	server.Var("counter", func(idxs []int32) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		counter++
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, counter)
		return b, nil
	})

	server.Var("blob", func(idxs []int32) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		out := make([]byte, len(blob))
		copy(out, blob)
		return out, nil
	})
}
