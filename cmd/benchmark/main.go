// Benchmark is a load-testing tool for the assessment and compliance
// pipeline. It seeds risk profiles across categories and enforcement
// levels, fires synthetic assessment and compliance-check traffic at a
// running server, and reports throughput, latency percentiles, and
// outcome distributions.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// categories mirror a typical rental marketplace taxonomy.
var categories = []struct {
	ID    string
	Level string
	Risk  string
}{
	{"cat-tools", "lenient", "low"},
	{"cat-electronics", "moderate", "medium"},
	{"cat-vehicles", "strict", "high"},
	{"cat-heavy-machinery", "very_strict", "critical"},
}

// AssessRequest is the Warden assessment request format.
type AssessRequest struct {
	ProductID string `json:"productId"`
	RenterID  string `json:"renterId"`
	BookingID string `json:"bookingId,omitempty"`
}

// AssessResponse is the subset of the assessment reply we inspect.
type AssessResponse struct {
	OverallScore int    `json:"overallScore"`
	RiskLevel    string `json:"riskLevel"`
}

// CheckRequest is the compliance check request format.
type CheckRequest struct {
	BookingID string `json:"bookingId"`
	ProductID string `json:"productId"`
	RenterID  string `json:"renterId"`
}

// CheckResponse is the subset of the compliance reply we inspect.
type CheckResponse struct {
	Status string `json:"status"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalRequests int64
	TotalErrors   int64

	mu         sync.Mutex
	latencies  []time.Duration
	riskLevels map[string]int64
	statuses   map[string]int64
}

func (m *Metrics) record(latency time.Duration, riskLevel, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, latency)
	if riskLevel != "" {
		m.riskLevels[riskLevel]++
	}
	if status != "" {
		m.statuses[status]++
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Warden base URL")
	count := flag.Int("count", 10000, "Number of bookings to simulate")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	products := flag.Int("products", 200, "Number of distinct products to seed")
	renters := flag.Int("renters", 500, "Number of distinct renters")
	checks := flag.Bool("checks", true, "Run compliance checks after each assessment")
	seed := flag.Int64("seed", 42, "Random seed for reproducible runs")
	flag.Parse()

	fmt.Println("WARDEN BENCHMARK - synthetic marketplace load")
	fmt.Printf("\nWarden URL: %s\n", *baseURL)
	fmt.Printf("Workers:    %d\n", *workers)
	fmt.Printf("Bookings:   %d\n", *count)
	fmt.Printf("Products:   %d\n", *products)
	fmt.Printf("Renters:    %d\n", *renters)
	fmt.Printf("Checks:     %v\n", *checks)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Warden not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Warden is running:")
		fmt.Println("  go run cmd/warden/main.go")
		os.Exit(1)
	}
	fmt.Println("Warden is healthy")

	rng := rand.New(rand.NewSource(*seed))

	fmt.Printf("\nSeeding %d risk profiles...\n", *products)
	if err := seedProfiles(*baseURL, *products, rng); err != nil {
		fmt.Printf("ERROR: Failed to seed profiles: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(*baseURL, *count, *workers, *products, *renters, *checks, *seed)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// seedProfiles creates one risk profile per product, cycling through the
// category taxonomy. Conflicts from previous runs are tolerated.
func seedProfiles(baseURL string, products int, rng *rand.Rand) error {
	client := &http.Client{Timeout: 10 * time.Second}
	created := 0

	for i := 0; i < products; i++ {
		cat := categories[i%len(categories)]
		profile := map[string]any{
			"productId":        fmt.Sprintf("bench-product-%d", i),
			"categoryId":       cat.ID,
			"countryId":        "US",
			"riskLevel":        cat.Risk,
			"enforcementLevel": cat.Level,
			"autoEnforcement":  false,
			"mandatory": map[string]any{
				"insuranceRequired":  cat.Risk == "high" || cat.Risk == "critical",
				"inspectionRequired": cat.Risk == "critical",
				"minCoverageAmount":  float64(1000 * (1 + rng.Intn(10))),
			},
		}

		status, err := postJSON(client, baseURL+"/risk-profiles", profile, nil)
		if err != nil {
			return err
		}
		switch status {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			// Profile survives from a previous run.
		default:
			return fmt.Errorf("unexpected status %d seeding product %d", status, i)
		}
	}

	fmt.Printf("Seeded %d new profiles (%d already existed)\n", created, products-created)
	return nil
}

func runBenchmark(baseURL string, count, workers, products, renters int, checks bool, seed int64) *Metrics {
	metrics := &Metrics{
		riskLevels: make(map[string]int64),
		statuses:   make(map[string]int64),
	}

	jobs := make(chan int, workers*2)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{Timeout: 30 * time.Second}
			rng := rand.New(rand.NewSource(seed + int64(workerID)))

			for i := range jobs {
				processBooking(client, baseURL, i, products, renters, checks, rng, metrics)
			}
		}(w)
	}

	progressEvery := count / 10
	if progressEvery == 0 {
		progressEvery = 1
	}
	for i := 0; i < count; i++ {
		jobs <- i
		if (i+1)%progressEvery == 0 {
			fmt.Printf("  ... %d/%d dispatched\n", i+1, count)
		}
	}
	close(jobs)
	wg.Wait()

	return metrics
}

func processBooking(client *http.Client, baseURL string, i, products, renters int, checks bool, rng *rand.Rand, metrics *Metrics) {
	productIdx := rng.Intn(products)
	bookingID := fmt.Sprintf("bench-booking-%d", i)

	assess := AssessRequest{
		ProductID: fmt.Sprintf("bench-product-%d", productIdx),
		RenterID:  fmt.Sprintf("bench-renter-%d", rng.Intn(renters)),
		BookingID: bookingID,
	}

	start := time.Now()

	var assessResp AssessResponse
	status, err := postJSON(client, baseURL+"/assessments", assess, &assessResp)
	if err != nil || status != http.StatusOK {
		atomic.AddInt64(&metrics.TotalErrors, 1)
		atomic.AddInt64(&metrics.TotalRequests, 1)
		return
	}

	var checkStatus string
	if checks {
		check := CheckRequest{
			BookingID: bookingID,
			ProductID: assess.ProductID,
			RenterID:  assess.RenterID,
		}
		var checkResp CheckResponse
		status, err = postJSON(client, baseURL+"/compliance/check", check, &checkResp)
		if err != nil || status != http.StatusOK {
			atomic.AddInt64(&metrics.TotalErrors, 1)
			atomic.AddInt64(&metrics.TotalRequests, 1)
			return
		}
		checkStatus = checkResp.Status
	}

	atomic.AddInt64(&metrics.TotalRequests, 1)
	metrics.record(time.Since(start), assessResp.RiskLevel, checkStatus)
}

func postJSON(client *http.Client, url string, body any, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func printResults(m *Metrics, duration time.Duration) {
	total := atomic.LoadInt64(&m.TotalRequests)
	errors := atomic.LoadInt64(&m.TotalErrors)

	fmt.Println()
	fmt.Println("RESULTS")
	fmt.Printf("  Duration:   %s\n", duration.Round(time.Millisecond))
	fmt.Printf("  Bookings:   %d\n", total)
	fmt.Printf("  Errors:     %d\n", errors)
	if duration > 0 {
		fmt.Printf("  Throughput: %.1f bookings/sec\n", float64(total)/duration.Seconds())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.latencies) > 0 {
		sorted := make([]time.Duration, len(m.latencies))
		copy(sorted, m.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		fmt.Println("\n  Latency (assessment + check):")
		fmt.Printf("    p50: %s\n", percentile(sorted, 0.50).Round(time.Microsecond))
		fmt.Printf("    p95: %s\n", percentile(sorted, 0.95).Round(time.Microsecond))
		fmt.Printf("    p99: %s\n", percentile(sorted, 0.99).Round(time.Microsecond))
		fmt.Printf("    max: %s\n", sorted[len(sorted)-1].Round(time.Microsecond))
	}

	if len(m.riskLevels) > 0 {
		fmt.Println("\n  Risk level distribution:")
		printDistribution(m.riskLevels)
	}
	if len(m.statuses) > 0 {
		fmt.Println("\n  Compliance status distribution:")
		printDistribution(m.statuses)
	}
	fmt.Println()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func printDistribution(counts map[string]int64) {
	keys := make([]string, 0, len(counts))
	var total int64
	for k, v := range counts {
		keys = append(keys, k)
		total += v
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("    %-16s %6d (%.1f%%)\n", k, counts[k], 100*float64(counts[k])/float64(total))
	}
}
