// Serves synthetic scrubd metrics so Grafana dashboards can be built and
// reviewed without scrubbing real data. The metric names and label sets
// mirror what the services export through the OTLP collector's Prometheus
// exporter (dots rendered as underscores).
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scrub pipeline metrics
	scrubOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrubd_scrub_operations_total",
			Help: "Total number of scrub operations",
		},
		[]string{"clearance_tier"},
	)
	scrubEntities = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scrubd_scrub_entities_total",
			Help: "Total number of entities detected",
		},
	)

	// Descrub metrics
	descrubOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrubd_descrub_operations_total",
			Help: "Total number of descrub operations",
		},
		[]string{"mode"},
	)
	descrubDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrubd_descrub_denied_total",
			Help: "Total number of denied descrub requests",
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(
		scrubOperations,
		scrubEntities,
		descrubOperations,
		descrubDenied,
	)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}

	generateSampleData()

	ctx, cancel := context.WithCancel(context.Background())
	go generateContinuousData(ctx)

	http.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + port,
		Handler: nil,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		cancel()
		server.Shutdown(context.Background())
	}()

	fmt.Printf("Sample metrics server running on http://localhost:%s/metrics\n", port)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println("\nTo use with Prometheus, add this to prometheus.yml:")
	fmt.Printf("  - job_name: 'scrubd-test'\n    static_configs:\n      - targets: ['localhost:%s']\n", port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func generateSampleData() {
	tiers := []string{"C1", "C2", "C3", "C4"}
	modes := []string{"receipt", "vault"}

	// Scrubs skew toward C3, the common operating tier.
	for i := 0; i < 200; i++ {
		tier := "C3"
		if rand.Float64() < 0.35 {
			tier = randomChoice(tiers)
		}
		scrubOperations.WithLabelValues(tier).Inc()
		scrubEntities.Add(float64(rand.Intn(8)))
	}

	// Descrubs are rarer than scrubs, receipts more common than vault.
	for i := 0; i < 40; i++ {
		mode := "receipt"
		if rand.Float64() < 0.25 {
			mode = randomChoice(modes)
		}
		descrubOperations.WithLabelValues(mode).Inc()
	}
	for i := 0; i < 6; i++ {
		descrubDenied.WithLabelValues(randomChoice(modes)).Inc()
	}
}

func generateContinuousData(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	tiers := []string{"C1", "C2", "C3", "C4"}
	modes := []string{"receipt", "vault"}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scrubOperations.WithLabelValues(randomChoice(tiers)).Inc()
			scrubEntities.Add(float64(rand.Intn(5)))
			if rand.Float64() < 0.3 {
				descrubOperations.WithLabelValues(randomChoice(modes)).Inc()
			}
			if rand.Float64() < 0.05 {
				descrubDenied.WithLabelValues(randomChoice(modes)).Inc()
			}
		}
	}
}

func randomChoice(choices []string) string {
	return choices[rand.Intn(len(choices))]
}
