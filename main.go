// main.go
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/phuslu/log"
	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"frameprof/internal/config"
	"frameprof/internal/logger"
	"frameprof/internal/metrics"
	"frameprof/internal/profiler"
)

var (
	version = "0.1.0"
)

func main() {
	appConfig, flags, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appConfig == nil {
		// -generate-config wrote the example file.
		return
	}

	if err := logger.ConfigureLogging(appConfig.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure loggers: %v\n", err)
		os.Exit(1)
	}

	if stop := startSelfProfiling(flags.SelfProfile); stop != nil {
		defer stop()
	}

	if appConfig.Server.PprofEnabled {
		go func() {
			log.Info().Msg("Starting pprof HTTP server on localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				log.Error().Err(err).Msg("pprof HTTP server stopped")
			}
		}()
	}

	log.Info().
		Str("version", version).
		Bool("gpu_profiling", appConfig.Profiler.GPUProfiling).
		Bool("network_profiling", appConfig.Profiler.NetworkProfiling).
		Bool("memory_tracking", appConfig.Profiler.MemoryTracking).
		Str("listen_address", appConfig.Server.ListenAddress).
		Str("metrics_path", appConfig.Server.MetricsPath).
		Msg("Starting frame profiler")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	prof, err := profiler.New(appConfig.Profiler)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize profiler")
	}
	defer prof.Shutdown()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		metrics.NewProfilerCollector(prof),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	http.Handle(appConfig.Server.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>
            <head><title>Frame Profiler</title></head>
            <body>
            <h1>Frame Profiler v` + version + ` </h1>
            <p><a href="` + appConfig.Server.MetricsPath + `">Metrics</a></p>
            </body>
            </html>`))
	})

	log.Info().Str("address", appConfig.Server.ListenAddress).Msg("Starting HTTP server")
	srv := &http.Server{Addr: appConfig.Server.ListenAddress}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	// Demo workload: a frame loop plus a few instrumented workers, so the
	// metrics endpoint has live data when the binary runs standalone.
	var workWG sync.WaitGroup
	workWG.Add(1)
	go func() {
		defer workWG.Done()
		runDemoWorkload(ctx, prof, appConfig.Profiler.ThreadPoolSizeHint)
	}()

	log.Info().Msg("Frame profiler is ready")

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal, shutting down gracefully...")
	workWG.Wait()

	if err := prof.ExportChromeTrace("trace.json"); err != nil {
		log.Error().Err(err).Msg("Trace export failed")
	}
	if err := prof.ExportFlamegraph("flamegraph.txt"); err != nil {
		log.Error().Err(err).Msg("Flamegraph export failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down HTTP server")
	}

	log.Info().Msg("Frame profiler stopped gracefully")
}

// startSelfProfiling enables pkg/profile for the requested mode and returns
// the stop function, or nil when self-profiling is off.
func startSelfProfiling(mode string) func() {
	var p interface{ Stop() }
	switch mode {
	case "":
		return nil
	case "cpu":
		p = profile.Start(profile.CPUProfile, profile.ProfilePath("."))
	case "mem":
		p = profile.Start(profile.MemProfile, profile.ProfilePath("."))
	case "block":
		p = profile.Start(profile.BlockProfile, profile.ProfilePath("."))
	case "mutex":
		p = profile.Start(profile.MutexProfile, profile.ProfilePath("."))
	case "goroutine":
		p = profile.Start(profile.GoroutineProfile, profile.ProfilePath("."))
	case "trace":
		p = profile.Start(profile.TraceProfile, profile.ProfilePath("."))
	default:
		log.Warn().Str("mode", mode).Msg("Unknown self-profile mode, ignoring")
		return nil
	}
	return p.Stop
}

// runDemoWorkload drives a ~60Hz frame loop with instrumented worker
// goroutines until the context is cancelled.
func runDemoWorkload(ctx context.Context, prof *profiler.Profiler, workers int) {
	if workers < 1 {
		workers = 1
	}

	main := prof.RegisterThread("main")

	type job struct{ iterations int }
	jobs := make(chan job)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			th := prof.RegisterThread(fmt.Sprintf("worker-%d", n))
			for j := range jobs {
				th.PushTimer("worker_job", 0)
				spin(j.iterations)
				th.PopTimer()
			}
		}(i)
	}

	ticker := time.NewTicker(time.Second / 60)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case <-ticker.C:
			prof.BeginFrame()

			main.PushTimer("frame", 0)
			main.PushTimer("update", 0)
			for i := 0; i < workers; i++ {
				select {
				case jobs <- job{iterations: 1000 + rand.Intn(5000)}:
				default:
				}
			}
			spin(2000)
			main.PopTimer()

			main.PushTimer("render", 0)
			spin(4000)
			main.Counter(profiler.CounterDrawCalls, uint64(100+rand.Intn(50)))
			main.Counter(profiler.CounterTriangles, uint64(400000+rand.Intn(200000)))
			main.PopTimer()
			main.PopTimer()

			prof.EndFrame()
		}
	}
}

// spin burns a deterministic amount of CPU.
func spin(iterations int) {
	x := 0
	for i := 0; i < iterations; i++ {
		x += i * i
	}
	_ = x
}
