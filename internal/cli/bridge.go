package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"math"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harnessgg/blenderbridge/internal/bridge"
	"github.com/harnessgg/blenderbridge/internal/client"
	"github.com/harnessgg/blenderbridge/internal/config"
	"github.com/harnessgg/blenderbridge/internal/engine"
	"github.com/harnessgg/blenderbridge/internal/jobs"
	"github.com/harnessgg/blenderbridge/internal/middleware"
	"github.com/harnessgg/blenderbridge/internal/queue"
	"github.com/harnessgg/blenderbridge/internal/server"
	"github.com/harnessgg/blenderbridge/internal/snapshot"
	ws "github.com/harnessgg/blenderbridge/internal/websocket"
	"github.com/harnessgg/blenderbridge/internal/worker"
	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

func newBridgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Bridge lifecycle",
	}
	cmd.AddCommand(
		newBridgeServeCmd(),
		newBridgeStartCmd(),
		newBridgeStopCmd(),
		newBridgeStatusCmd(),
		newBridgeVerifyCmd(),
		newBridgeRunPythonCmd(),
		newBridgeTokenCmd(),
	)
	return cmd
}

func newBridgeServeCmd() *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge server in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				log.Fatalf("Failed to load config: %v", err)
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "interface to bind")
	cmd.Flags().IntVar(&port, "port", 41749, "port to bind")
	return cmd
}

// runServe wires every component together and blocks until SIGINT or
// SIGTERM.
func runServe(cfg *config.Config) error {
	eng := engine.New(cfg.Engine.Binary)
	store := snapshot.NewStore()
	tracker := jobs.NewTracker()

	// The render queue is optional; without Redis, animations render
	// inline on the request goroutine.
	var queueClient *queue.Client
	var jobStore *queue.JobStore
	if cfg.Redis.Enabled() {
		queueClient = queue.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := queueClient.Ping(ctx)
		cancel()
		if err != nil {
			log.Printf("Warning: Redis not available: %v", err)
			queueClient.Close()
			queueClient = nil
		} else {
			jobStore = queueClient.Jobs
		}
	}

	var storage *client.ObjectStore
	if cfg.Storage.Enabled() {
		st, err := client.NewObjectStore(&cfg.Storage)
		if err != nil {
			log.Printf("Warning: object storage not available: %v", err)
		} else {
			storage = st
		}
	}

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	b := bridge.New(eng, store, tracker, queueClient, storage)
	authMiddleware := middleware.NewAuthMiddleware(cfg.Auth.Secret)
	srv := server.New(b, tracker, jobStore, hub, authMiddleware, cfg.Server.LogRequests)

	// Start Asynq worker server
	if queueClient != nil {
		go func() {
			if err := worker.RunServer(cfg, eng, jobStore, hub); err != nil {
				log.Printf("Asynq worker error: %v", err)
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if queueClient != nil {
			queueClient.Close()
		}
	}()

	log.Printf("Server starting on %s", cfg.Server.Addr())
	if err := srv.Listen(cfg.Server.Addr()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	return nil
}

func newBridgeStartCmd() *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the bridge server in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridgeStart(host, port)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "interface to bind")
	cmd.Flags().IntVar(&port, "port", 41749, "port to bind")
	return cmd
}

func runBridgeStart(host string, port int) error {
	dir, err := config.StateDir()
	if err != nil {
		return fail("bridge.start", protocol.CodeError, fmt.Sprintf("Could not open state directory: %v", err))
	}
	pidFile := filepath.Join(dir, "bridge.pid")
	urlFile := filepath.Join(dir, "bridge.url")

	if raw, err := os.ReadFile(pidFile); err == nil {
		pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
		if err == nil && processAlive(pid) {
			printOK("bridge.start", map[string]any{"status": "already-running", "pid": pid, "host": host, "port": port})
			return nil
		}
		os.Remove(pidFile) // stale
	}

	exe, err := os.Executable()
	if err != nil {
		return fail("bridge.start", protocol.CodeError, fmt.Sprintf("Could not resolve executable: %v", err))
	}
	proc := exec.Command(exe, "bridge", "serve", "--host", host, "--port", strconv.Itoa(port))
	if err := proc.Start(); err != nil {
		return fail("bridge.start", protocol.CodeError, fmt.Sprintf("Could not start bridge: %v", err))
	}

	url := fmt.Sprintf("http://%s:%d", host, port)
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(proc.Process.Pid)), 0o644); err != nil {
		return fail("bridge.start", protocol.CodeError, fmt.Sprintf("Could not write pid file: %v", err))
	}
	if err := os.WriteFile(urlFile, []byte(url), 0o644); err != nil {
		return fail("bridge.start", protocol.CodeError, fmt.Sprintf("Could not write url file: %v", err))
	}

	probe := client.NewBridgeClient(url)
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		payload, err := probe.Health(context.Background())
		if err != nil {
			continue
		}
		if ok, _ := payload["ok"].(bool); ok {
			printOK("bridge.start", map[string]any{"status": "started", "pid": proc.Process.Pid, "host": host, "port": port})
			return nil
		}
	}
	return fail("bridge.start", protocol.CodeBridgeUnavailable, "Bridge process started but health check failed")
}

// processAlive probes pid with signal 0. os.FindProcess never fails on
// Unix, so the signal result is the real liveness check.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func newBridgeStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a background bridge server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.StateDir()
			if err != nil {
				return fail("bridge.stop", protocol.CodeError, fmt.Sprintf("Could not open state directory: %v", err))
			}
			pidFile := filepath.Join(dir, "bridge.pid")
			raw, err := os.ReadFile(pidFile)
			if err != nil {
				printOK("bridge.stop", map[string]any{"status": "not-running"})
				return nil
			}
			pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
			if err != nil {
				return fail("bridge.stop", protocol.CodeError, fmt.Sprintf("Invalid pid file: %v", err))
			}
			if proc, err := os.FindProcess(pid); err == nil {
				_ = proc.Signal(syscall.SIGTERM) // may already be gone
			}
			os.Remove(pidFile)
			os.Remove(filepath.Join(dir, "bridge.url"))
			printOK("bridge.stop", map[string]any{"status": "stopped", "pid": pid})
			return nil
		},
	}
}

func newBridgeStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether a bridge server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := resolveClient()
			health, err := c.Health(context.Background())
			if err != nil {
				// Always retryable here: the caller's next move is to
				// start the bridge and ask again.
				if pe, ok := protocol.AsError(err); ok {
					return failWith("bridge.status", pe.Code, pe.Message, true)
				}
				return failWith("bridge.status", protocol.CodeError, err.Error(), true)
			}
			printOK("bridge.status", map[string]any{"running": true, "health": health, "url": c.BaseURL()})
			return nil
		},
	}
}

func newBridgeVerifyCmd() *cobra.Command {
	var (
		iterations  int
		maxFailures int
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Hammer system.health and report latency and stability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if iterations < 1 || iterations > 500 {
				return fail("bridge.verify", protocol.CodeInvalidInput, "iterations must be between 1 and 500")
			}
			if maxFailures < 0 {
				return fail("bridge.verify", protocol.CodeInvalidInput, "max-failures must not be negative")
			}
			c := resolveClient()
			failures := 0
			latencies := make([]float64, 0, iterations)
			for i := 0; i < iterations; i++ {
				start := time.Now()
				if _, err := c.Call(context.Background(), "system.health", map[string]any{}, 30*time.Second); err != nil {
					failures++
				}
				latencies = append(latencies, round3(float64(time.Since(start))/float64(time.Millisecond)))
				time.Sleep(20 * time.Millisecond)
			}
			minMs, maxMs, sum := latencies[0], latencies[0], 0.0
			for _, ms := range latencies {
				minMs = math.Min(minMs, ms)
				maxMs = math.Max(maxMs, ms)
				sum += ms
			}
			stable := failures <= maxFailures
			printOK("bridge.verify", map[string]any{
				"stable":             stable,
				"iterations":         iterations,
				"failures":           failures,
				"maxFailuresAllowed": maxFailures,
				"latencyMs": map[string]any{
					"min": minMs,
					"max": maxMs,
					"avg": round3(sum / float64(len(latencies))),
				},
			})
			if !stable {
				return exitError{code: protocol.ExitCode(protocol.CodeError)}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&iterations, "iterations", 25, "health calls to perform")
	cmd.Flags().IntVar(&maxFailures, "max-failures", 0, "failures tolerated before reporting unstable")
	return cmd
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func newBridgeRunPythonCmd() *cobra.Command {
	var (
		project        string
		paramsJSON     string
		timeoutSeconds int
	)
	cmd := &cobra.Command{
		Use:   "run-python SCRIPT",
		Short: "Execute a Python script inside the scene engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := os.ReadFile(args[0])
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return fail("bridge.run-python", protocol.CodeNotFound, fmt.Sprintf("Script not found: %s", args[0]))
				}
				return fail("bridge.run-python", protocol.CodeError, fmt.Sprintf("Could not read script: %v", err))
			}
			userParams, err := jsonArg("bridge.run-python", "--params-json", paramsJSON)
			if err != nil {
				return err
			}
			if err := ensureBridgeReady("bridge.run-python"); err != nil {
				return err
			}
			timeout := time.Duration(timeoutSeconds) * time.Second
			if timeout < 30*time.Second {
				timeout = 30 * time.Second
			}
			return runQuery("bridge.run-python", "bridge.run_python", map[string]any{
				"project":         nilIfEmpty(project),
				"code":            string(code),
				"user_params":     userParams,
				"timeout_seconds": timeoutSeconds,
			}, timeout)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "blend file to open before running the script")
	cmd.Flags().StringVar(&paramsJSON, "params-json", "{}", "JSON object exposed to the script as params")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout-seconds", 120, "engine-side time limit")
	return cmd
}

func newBridgeTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token from the configured auth secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := config.AuthSecret()
			if secret == "" {
				return fail("bridge.token", protocol.CodeInvalidInput, "HARNESS_BLENDER_AUTH_SECRET is not set")
			}
			token, err := middleware.NewAuthMiddleware(secret).GenerateToken(subject, ttl)
			if err != nil {
				return fail("bridge.token", protocol.CodeError, fmt.Sprintf("Could not sign token: %v", err))
			}
			printOK("bridge.token", map[string]any{
				"token":            token,
				"subject":          subject,
				"expiresInSeconds": int(ttl.Seconds()),
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
