// Command loopback drives the per-stream engine against an in-process
// connection: it opens a stream, feeds inbound data through the engine's
// signal path, echoes it back through the outbound path, and prints the
// byte accounting observed at the connection boundary.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/dustin/go-humanize"

	"example.com/muxstream/v2/internal/config"
	"example.com/muxstream/v2/internal/logger"
	"example.com/muxstream/v2/internal/mux"
)

var (
	configFilePath string
	chunkCount     int
	chunkSize      int
	offloadPath    string
)

func main() {
	flag.StringVar(&configFilePath, "config", "", "Path to a configuration file (JSON or TOML); defaults apply if omitted")
	flag.IntVar(&chunkCount, "chunks", 8, "Number of inbound chunks to feed through the stream")
	flag.IntVar(&chunkSize, "chunk-size", 4096, "Size of each inbound chunk in bytes")
	flag.StringVar(&offloadPath, "send-file", "", "Optional file to stream through the file offload helper")
	flag.Parse()

	cfg := &config.Config{}
	if configFilePath != "" {
		loaded, err := config.LoadConfig(configFilePath)
		if err != nil {
			log.Fatalf("Failed to load configuration from %s: %v", configFilePath, err)
		}
		cfg = loaded
	} else {
		config.ApplyDefaults(cfg)
	}

	appLogger, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		if err := appLogger.CloseLogFiles(); err != nil {
			log.Printf("Error closing log files during shutdown: %v", err)
		}
	}()

	conn := mux.NewLoopbackConnection(appLogger)
	stream, err := conn.OpenStream(
		mux.WithEngineConfig(cfg.Engine),
		mux.WithMetrics(mux.NewEngineMetrics()),
	)
	if err != nil {
		log.Fatalf("Failed to open stream: %v", err)
	}

	var done sync.WaitGroup
	done.Add(1)

	// Echo: every delivered chunk goes straight back out; the end signal
	// ends the response too.
	stream.SetDataHandler(func(chunk []byte) {
		if err := stream.WriteData(chunk, false, nil); err != nil {
			appLogger.Error("echo write failed", logger.LogFields{"error": err.Error()})
		}
	})
	stream.SetEndHandler(func(trailers mux.Headers) {
		if err := stream.WriteData(nil, true, nil); err != nil {
			appLogger.Error("end write failed", logger.LogFields{"error": err.Error()})
		}
		done.Done()
	})
	stream.SetExceptionHandler(func(err error) {
		appLogger.Error("stream exception", logger.LogFields{"error": err.Error()})
	})

	// Outbound calls from outside the stream's execution context are
	// marshaled through Dispatch.
	stream.Dispatch(func() {
		if err := stream.WriteHeaders(mux.Headers{}, false, nil); err != nil {
			appLogger.Error("header write failed", logger.LogFields{"error": err.Error()})
		}
	})

	chunk := make([]byte, chunkSize)
	for i := 0; i < chunkCount; i++ {
		stream.OnData(chunk)
	}
	stream.OnEnd(nil)
	done.Wait()

	if offloadPath != "" {
		region, err := mux.ResolveFile(offloadPath, 0, mux.LengthToEOF)
		if err != nil {
			log.Fatalf("Failed to resolve %s: %v", offloadPath, err)
		}
		fmt.Printf("resolved %s: %s at offset %d (zero-copy eligible on plaintext transports: %v)\n",
			offloadPath, humanize.Bytes(uint64(region.Len())), region.Offset(), region.ZeroCopyEligible(false))
		region.Close()
	}

	fmt.Printf("stream %d: read %s, wrote %s\n",
		stream.ID(),
		humanize.Bytes(uint64(stream.BytesRead())),
		humanize.Bytes(uint64(stream.BytesWritten())))
	fmt.Printf("connection: credits consumed %s, bytes-read reported %s\n",
		humanize.Bytes(uint64(conn.CreditsConsumed())),
		humanize.Bytes(uint64(conn.BytesReadReported())))

	conn.CloseAll()
	os.Exit(0)
}
