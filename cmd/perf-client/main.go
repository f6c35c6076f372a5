package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kkkkikiki/referral/internal/server"
)

// PerfResult gathers aggregated metrics for the test run.
// LatencySum and P95Latency are in nanoseconds.
type PerfResult struct {
	TotalRequests int64
	SuccessCount  int64
	ErrorCount    int64
	LatencySum    int64
	P95Latency    int64
}

const (
	fixedWorkers   = 50
	fixedRPSTarget = 700
	fixedDuration  = 30 * time.Second
	defaultTimeout = 30 * time.Second
	fixedUserID    = 1
	fixedCampaign  = 1
)

func main() {
	baseURL := os.Getenv("PERF_TARGET_URL")
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}
	rps := fixedRPSTarget
	duration := fixedDuration
	workers := fixedWorkers

	// ─── HTTP Client & Transport ─────────────────────────────────
	transport := &http.Transport{
		MaxIdleConns:        workers * 4,
		MaxIdleConnsPerHost: workers * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}
	client := server.NewAttributionClient(httpClient, baseURL)

	// ─── Token & baseline ────────────────────────────────────────
	setupCtx, setupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	token, err := client.IssueQRToken(setupCtx, fixedUserID, fixedCampaign)
	if err != nil {
		setupCancel()
		fmt.Fprintf(os.Stderr, "failed to issue qr token: %v\n", err)
		os.Exit(1)
	}
	before, err := client.GetCounters(setupCtx, fixedUserID, fixedCampaign)
	setupCancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read counters: %v\n", err)
		os.Exit(1)
	}

	// ─── Banner ──────────────────────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("QR scan load test (uniform)")
	fmt.Println("==========================================")
	fmt.Printf("Target      : %s\n", baseURL)
	fmt.Printf("Pair        : user %d / campaign %d\n", fixedUserID, fixedCampaign)
	fmt.Printf("Token       : %s\n", token)
	fmt.Printf("RPS         : %d\n", rps)
	fmt.Printf("Duration    : %v\n", duration)
	fmt.Printf("Start hits  : %d\n", before.Hits)
	fmt.Println("==========================================")

	// ─── Rate limiter & context ─────────────────────────────────
	burst := max(rps/workers, 1)
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var result PerfResult

	// latencyChan collects latencies for P95 estimation.
	latencyChan := make(chan time.Duration, 4096)
	trackerDone := make(chan struct{})
	go func() {
		trackP95(latencyChan, &result)
		close(trackerDone)
	}()

	// ─── Workers ────────────────────────────────────────────────
	start := time.Now()
	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for {
				if err := limiter.Wait(ctx); err != nil { // duration elapsed
					return nil
				}
				doScan(client, token, &result, latencyChan)
			}
		})
	}
	_ = g.Wait()
	close(latencyChan)
	<-trackerDone

	totalDur := time.Since(start)

	// ─── Report ─────────────────────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("Results")
	fmt.Println("==========================================")
	fmt.Printf("Elapsed        : %.2fs\n", totalDur.Seconds())
	fmt.Printf("Total requests : %d\n", result.TotalRequests)
	fmt.Printf("Succeeded      : %d\n", result.SuccessCount)
	fmt.Printf("Failed         : %d\n", result.ErrorCount)

	actualRPS := float64(result.SuccessCount) / totalDur.Seconds()
	var successRate float64
	if result.TotalRequests > 0 {
		successRate = float64(result.SuccessCount) / float64(result.TotalRequests) * 100
	}

	var avgLatency time.Duration
	if result.SuccessCount > 0 {
		avgLatency = time.Duration(result.LatencySum / result.SuccessCount)
	}

	fmt.Printf("Actual RPS     : %.2f\n", actualRPS)
	fmt.Printf("Success rate   : %.2f%%\n", successRate)
	fmt.Printf("Avg latency    : %v\n", avgLatency)
	fmt.Printf("P95 latency    : %v\n", time.Duration(result.P95Latency))
	fmt.Println("==========================================")

	// ─── Data Consistency Check ─────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("Counter consistency")
	fmt.Println("==========================================")

	if err := verifyCounters(client, before, result.SuccessCount); err != nil {
		fmt.Printf("FAIL: %v\n", err)
		fmt.Println("==========================================")
		os.Exit(1)
	}
	fmt.Println("OK: hits and referrals match successful scans")
	fmt.Println("==========================================")
}

// doScan performs a single Scan RPC and collects metrics.
func doScan(client *server.AttributionClient, token string, result *PerfResult, latencyChan chan<- time.Duration) {
	// Independent context so in-flight scans finish when the test ends
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	start := time.Now()
	atomic.AddInt64(&result.TotalRequests, 1)

	target, err := client.Scan(ctx, token)
	latency := time.Since(start)

	if err != nil || target == "" {
		atomic.AddInt64(&result.ErrorCount, 1)
		return
	}
	atomic.AddInt64(&result.SuccessCount, 1)
	atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())
	select {
	case latencyChan <- latency:
	default:
	}
}

// trackP95 maintains a best-effort rolling P95 latency estimation.
func trackP95(latencies <-chan time.Duration, result *PerfResult) {
	const size = 1000
	buf := make([]int64, 0, size)
	seen := 0

	for lat := range latencies {
		seen++
		if len(buf) < size {
			buf = append(buf, lat.Nanoseconds())
		} else if idx := rand.IntN(seen); idx < size {
			// reservoir sampling
			buf[idx] = lat.Nanoseconds()
		}

		if seen%100 == 0 {
			sorted := slices.Clone(buf)
			slices.Sort(sorted)
			p95Index := min(int(float64(len(sorted))*0.95), len(sorted)-1)
			atomic.StoreInt64(&result.P95Latency, sorted[p95Index])
		}
	}
}

// verifyCounters checks that both counters moved by exactly the number of
// scans the server acknowledged.
func verifyCounters(client *server.AttributionClient, before *server.GetCountersResponse, expected int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	after, err := client.GetCounters(ctx, fixedUserID, fixedCampaign)
	if err != nil {
		return fmt.Errorf("failed to read counters: %w", err)
	}

	hits := after.Hits - before.Hits
	referrals := after.Referrals - before.Referrals

	fmt.Printf("Hits delta      : %d\n", hits)
	fmt.Printf("Referrals delta : %d\n", referrals)
	fmt.Printf("Scans succeeded : %d\n", expected)

	if hits != referrals {
		return fmt.Errorf("counters diverged: hits=%d referrals=%d", hits, referrals)
	}
	if hits != expected {
		return fmt.Errorf("mismatch: store=%d client=%d diff=%d", hits, expected, hits-expected)
	}
	return nil
}
