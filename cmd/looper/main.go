// Command looper runs the loop recorder against the default sound card, or
// headless with a silent input, and exposes it over a WebSocket control
// server.
//
// Usage:
//
//	go run ./cmd/looper
//
// Then connect via WebSocket:
//
//	wscat -c "ws://localhost:8090/v1/looper"
//	> {"type":"start_record"}
//	> {"type":"stop_record"}
//
// Configuration is read from the environment (and a .env file):
//
//	LOOPER_STORAGE_DIR    directory holding the slot files (default ./loops)
//	LOOPER_SAMPLE_RATE    sample rate in Hz (default 44100)
//	LOOPER_AUDIO_BACKEND  "malgo" or "headless" (default malgo)
//	LOOPER_MONITOR        mix the dry input into the output (default true)
//	LOOPER_INPUT_DRIVE    0..1 input saturation (default 0)
//	LOOPER_SATURATION     0..1 overdub saturation (default 0)
//	LOOPER_IMPORT_WAV     WAV file copied into the first slot at startup
//	LOOPER_CONTROL_ADDR   control server address (default :8090)
//	LOOPER_CONTROL_TOKEN  bearer token required by the control server
//	TRACE_EXPORTER        none, stdout or otlp
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/realtime-ai/looper/pkg/audio"
	"github.com/realtime-ai/looper/pkg/device"
	"github.com/realtime-ai/looper/pkg/looper"
	"github.com/realtime-ai/looper/pkg/pipeline"
	"github.com/realtime-ai/looper/pkg/rt"
	"github.com/realtime-ai/looper/pkg/server"
	"github.com/realtime-ai/looper/pkg/storage"
	"github.com/realtime-ai/looper/pkg/trace"
)

func main() {
	// Load environment variables from .env file
	godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := trace.Initialize(ctx, trace.DefaultConfig()); err != nil {
		log.Printf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := trace.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down tracing: %v", err)
		}
	}()

	backend, err := storage.NewDirBackend(getEnv("LOOPER_STORAGE_DIR", "loops"))
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}

	if path := os.Getenv("LOOPER_IMPORT_WAV"); path != "" {
		if err := importWAV(path, backend); err != nil {
			log.Fatalf("Failed to import %s: %v", path, err)
		}
	}

	cfg := looper.DefaultConfig()
	cfg.SampleRate = getEnvInt("LOOPER_SAMPLE_RATE", cfg.SampleRate)

	pool := audio.NewFixedPool(audio.DefaultPoolBlocks)
	headless := getEnv("LOOPER_AUDIO_BACKEND", "malgo") == "headless"

	var port looper.Port
	var queuePort *device.QueuePort
	if headless {
		nullPort := device.NewNullPort(pool)
		defer func() {
			st := nullPort.Stats()
			log.Printf("Headless port stats: received=%d transmitted=%d alloc_failures=%d",
				st.Received, st.Transmitted, st.AllocationFailures)
		}()
		port = nullPort
	} else {
		queuePort = device.NewQueuePort(pool, device.DefaultQueueBlocks)
		port = queuePort
	}

	rec := looper.NewRecorderWithConfig(cfg, pool, backend, port)
	rec.SetSaturation(getEnvFloat("LOOPER_SATURATION", 0))

	bus := pipeline.NewEventBus()
	if err := bus.Start(ctx); err != nil {
		log.Fatalf("Failed to start event bus: %v", err)
	}
	defer bus.Stop()
	rec.SetBus(bus)

	if headless {
		go rec.Clock().Run(ctx, rt.Period(audio.BlockSamples, cfg.SampleRate))
		log.Printf("Running headless at %d Hz", cfg.SampleRate)
	} else {
		devCfg := device.DefaultConfig()
		devCfg.SampleRate = cfg.SampleRate
		devCfg.Monitor = getEnvBool("LOOPER_MONITOR", true)
		devCfg.InputDrive = getEnvFloat("LOOPER_INPUT_DRIVE", 0)

		dev := device.New(devCfg, pool, rec.Clock(), queuePort)
		if err := dev.Start(); err != nil {
			log.Fatalf("Failed to start audio device: %v", err)
		}
		defer func() {
			if err := dev.Close(); err != nil {
				log.Printf("Error closing audio device: %v", err)
			}
			st := dev.Stats()
			log.Printf("Device stats: callbacks=%d underruns=%d overruns=%d alloc_failures=%d input_drops=%d output_drops=%d",
				st.Callbacks, st.Underruns, st.Overruns, st.AllocationFailures, st.Port.InputDrops, st.Port.OutputDrops)
		}()
	}

	runner := looper.NewRunner(rec)

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = getEnv("LOOPER_CONTROL_ADDR", srvCfg.Addr)
	srvCfg.AuthToken = os.Getenv("LOOPER_CONTROL_TOKEN")

	srv := server.NewControlServer(srvCfg, runner, bus)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Failed to start control server: %v", err)
	}

	log.Printf("Looper control server running on %s%s", srv.Addr(), srvCfg.Path)
	log.Println("Press Ctrl+C to stop")

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Runner stopped: %v", err)
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	pool.LogStats("looper")
	log.Println("Looper stopped")
}

func importWAV(path string, backend storage.Backend) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rate, err := storage.ImportWAV(f, backend, looper.SlotA)
	if err != nil {
		return err
	}
	log.Printf("Imported %s into %s (%d Hz)", path, looper.SlotA, rate)
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}
