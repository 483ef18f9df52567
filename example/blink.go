package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zereker/opc"
)

// strand is the Device for this demo. An OPC server rarely talks back,
// so it just logs whatever arrives.
type strand struct {
	channel byte
}

func (s *strand) ReadMessage(msg opc.Message) error {
	slog.Info("received message", "channel", msg.Channel, "broadcast", msg.IsBroadcast())
	return nil
}

func (s *strand) Channel() byte {
	return s.channel
}

// frame builds a solid-color SetPixelColors message for n pixels.
func frame(channel byte, n int, color opc.Pixel) opc.Message {
	pixels := make([]opc.Pixel, n)
	for i := range pixels {
		pixels[i] = color
	}
	return opc.NewMessage(channel, opc.SetPixelColors{Pixels: pixels})
}

func main() {
	addr := fmt.Sprintf("127.0.0.1:%d", opc.DefaultPort)
	raw, err := net.Dial("tcp", addr)
	if err != nil {
		slog.Error("failed to dial", "addr", addr, "error", err)
		return
	}

	device := &strand{channel: 1}
	conn, err := opc.NewConn(raw,
		opc.DeviceOption(device),
		opc.BufferSizeOption(8),
		opc.OnErrorOption(func(err error) opc.ErrorAction {
			slog.Error("connection error", "error", err)
			return opc.Disconnect
		}),
	)
	if err != nil {
		panic(err)
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down...")
		cancel()
	}()

	// Blink the first 64 pixels of strand 1 between red and off.
	go func() {
		colors := []opc.Pixel{{255, 0, 0}, {0, 0, 0}}
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		for i := 0; ; i++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.Write(frame(device.Channel(), 64, colors[i%2])); err != nil {
					slog.Error("write failed", "error", err)
				}
			}
		}
	}()

	slog.Info("sending to OPC server", "addr", addr)
	if err := conn.Run(ctx); err != nil {
		slog.Error("connection ended", "error", err)
	}
}
