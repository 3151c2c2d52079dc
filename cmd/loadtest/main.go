package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

func main() {
	var (
		targetURL      = flag.String("target-url", "http://localhost:8080/api/v1", "Entropy pool API base URL")
		requestBytes   = flag.Int("request-bytes", 256, "Bytes requested per call to /random/{n}")
		duration       = flag.Duration("duration", 30*time.Second, "Test duration")
		workers        = flag.Int("workers", 5, "Number of worker goroutines")
		qps            = flag.Int("qps", 25, "Queries per second per worker")
		baselineDir    = flag.String("baseline-dir", "testdata/baselines", "Directory for baseline files")
		threshold      = flag.Float64("threshold", 10.0, "Regression threshold percentage")
		verbose        = flag.Bool("verbose", false, "Enable verbose logging")
		updateBaseline = flag.Bool("update-baseline", false, "Update the baseline file instead of checking regression")
	)
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := os.MkdirAll(*baselineDir, 0o755); err != nil {
		log.Fatalf("Failed to create baseline directory: %v", err)
	}

	fmt.Println("=== Solar Entropy Pool Load Test Runner ===")
	fmt.Printf("Target URL: %s\n", *targetURL)
	fmt.Printf("Request Size: %d bytes\n", *requestBytes)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Workers: %d\n", *workers)
	fmt.Printf("QPS per Worker: %d\n", *qps)
	fmt.Printf("Regression Threshold: %.1f%%\n", *threshold)
	fmt.Println()

	cfg := randomLoadTestConfig{
		TargetURL:           *targetURL,
		RequestBytes:        *requestBytes,
		NumWorkers:          *workers,
		Duration:            *duration,
		QPS:                 *qps,
		BaselineFile:        filepath.Join(*baselineDir, "random_load_test_baseline.json"),
		RegressionThreshold: *threshold,
	}

	results, err := runRandomLoadTest(cfg, sigChan, logger)
	if err != nil {
		log.Fatalf("load test failed: %v", err)
	}
	printLoadTestResults(results)

	if *updateBaseline {
		if err := saveBaseline(cfg.BaselineFile, results); err != nil {
			log.Fatalf("failed to save baseline: %v", err)
		}
		fmt.Println("✅ Baseline updated for random load test")
		return
	}

	regression, err := analyzeRegression(results, cfg.BaselineFile, cfg.RegressionThreshold)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("ℹ️  No baseline found - run with --update-baseline to create one")
			return
		}
		log.Fatalf("regression analysis failed: %v", err)
	}
	printRegressionResult(regression)

	if regression.SignificantRegression {
		fmt.Println("❌ Significant regression detected")
		os.Exit(1)
	}
	fmt.Println("✅ Load test passed")
}

type randomLoadTestConfig struct {
	TargetURL           string
	RequestBytes        int
	NumWorkers          int
	Duration            time.Duration
	QPS                 int
	BaselineFile        string
	RegressionThreshold float64
}

// loadTestResults aggregates a single run's measured latencies and error
// counts, suitable for comparing against a saved baseline.
type loadTestResults struct {
	TotalRequests      int           `json:"total_requests"`
	SuccessfulRequests int           `json:"successful_requests"`
	FailedRequests     int           `json:"failed_requests"`
	AvgLatencyMs       float64       `json:"avg_latency_ms"`
	P50LatencyMs       float64       `json:"p50_latency_ms"`
	P95LatencyMs       float64       `json:"p95_latency_ms"`
	P99LatencyMs       float64       `json:"p99_latency_ms"`
	ThroughputRPS      float64       `json:"throughput_rps"`
	Duration           time.Duration `json:"duration"`
}

type regressionResult struct {
	Current                loadTestResults
	Baseline               loadTestResults
	P99LatencyDeltaPercent float64
	ThroughputDeltaPercent float64
	SignificantRegression  bool
}

// runRandomLoadTest drives NumWorkers goroutines against TargetURL's
// /random/{n} endpoint at roughly QPS requests per second each, until
// Duration elapses or an interrupt signal arrives.
func runRandomLoadTest(cfg randomLoadTestConfig, sigChan <-chan os.Signal, logger *logrus.Logger) (loadTestResults, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	url := fmt.Sprintf("%s/random/%d", cfg.TargetURL, cfg.RequestBytes)

	var (
		mu         sync.Mutex
		latencies  []time.Duration
		successes  int
		failures   int
		wg         sync.WaitGroup
	)

	stop := make(chan struct{})
	go func() {
		select {
		case <-sigChan:
			logger.Info("received interrupt signal, stopping load test")
			close(stop)
		case <-time.After(cfg.Duration):
			close(stop)
		}
	}()

	start := time.Now()
	for i := 0; i < cfg.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			interval := time.Second / time.Duration(cfg.QPS)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					reqStart := time.Now()
					resp, err := client.Get(url)
					latency := time.Since(reqStart)

					mu.Lock()
					latencies = append(latencies, latency)
					if err != nil || resp.StatusCode != http.StatusOK {
						failures++
					} else {
						successes++
					}
					mu.Unlock()

					if resp != nil {
						io.Copy(io.Discard, resp.Body)
						resp.Body.Close()
					}
				}
			}
		}()
	}
	wg.Wait()
	totalDuration := time.Since(start)

	return summarize(latencies, successes, failures, totalDuration), nil
}

func summarize(latencies []time.Duration, successes, failures int, duration time.Duration) loadTestResults {
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}

	percentile := func(p float64) float64 {
		if len(sorted) == 0 {
			return 0
		}
		idx := int(p * float64(len(sorted)-1))
		return float64(sorted[idx].Milliseconds())
	}

	avg := 0.0
	if len(sorted) > 0 {
		avg = float64(sum.Milliseconds()) / float64(len(sorted))
	}

	total := successes + failures
	throughput := 0.0
	if duration > 0 {
		throughput = float64(total) / duration.Seconds()
	}

	return loadTestResults{
		TotalRequests:      total,
		SuccessfulRequests: successes,
		FailedRequests:     failures,
		AvgLatencyMs:       avg,
		P50LatencyMs:       percentile(0.50),
		P95LatencyMs:       percentile(0.95),
		P99LatencyMs:       percentile(0.99),
		ThroughputRPS:      throughput,
		Duration:           duration,
	}
}

func printLoadTestResults(r loadTestResults) {
	fmt.Println("--- Load Test Results ---")
	fmt.Printf("Total Requests:   %d\n", r.TotalRequests)
	fmt.Printf("Successful:       %d\n", r.SuccessfulRequests)
	fmt.Printf("Failed:           %d\n", r.FailedRequests)
	fmt.Printf("Avg Latency:      %.2f ms\n", r.AvgLatencyMs)
	fmt.Printf("P50 Latency:      %.2f ms\n", r.P50LatencyMs)
	fmt.Printf("P95 Latency:      %.2f ms\n", r.P95LatencyMs)
	fmt.Printf("P99 Latency:      %.2f ms\n", r.P99LatencyMs)
	fmt.Printf("Throughput:       %.2f req/s\n", r.ThroughputRPS)
	fmt.Println()
}

func saveBaseline(path string, results loadTestResults) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func analyzeRegression(current loadTestResults, baselinePath string, thresholdPercent float64) (regressionResult, error) {
	data, err := os.ReadFile(baselinePath)
	if err != nil {
		return regressionResult{}, err
	}
	var baseline loadTestResults
	if err := json.Unmarshal(data, &baseline); err != nil {
		return regressionResult{}, fmt.Errorf("parse baseline: %w", err)
	}

	p99Delta := percentDelta(baseline.P99LatencyMs, current.P99LatencyMs)
	throughputDelta := percentDelta(baseline.ThroughputRPS, current.ThroughputRPS)

	significant := p99Delta > thresholdPercent || throughputDelta < -thresholdPercent

	return regressionResult{
		Current:                current,
		Baseline:               baseline,
		P99LatencyDeltaPercent: p99Delta,
		ThroughputDeltaPercent: throughputDelta,
		SignificantRegression:  significant,
	}, nil
}

func percentDelta(baseline, current float64) float64 {
	if baseline == 0 {
		return 0
	}
	return ((current - baseline) / baseline) * 100
}

func printRegressionResult(r regressionResult) {
	fmt.Println("--- Regression Analysis ---")
	fmt.Printf("P99 Latency Delta:   %.2f%%\n", r.P99LatencyDeltaPercent)
	fmt.Printf("Throughput Delta:    %.2f%%\n", r.ThroughputDeltaPercent)
	fmt.Println()
}
