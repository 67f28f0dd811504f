// Load generator for a running fraudlens server.
//
// Usage:
//
//	go run ./cmd/loadgen -csv scored.csv -url http://localhost:8080
//
// Reads fraud model output in the CSV layout, posts it to /explain/batch in
// fixed-size batches and reports how the narrative step resolved.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/ingest"
)

type batchRequest struct {
	Records []domain.TransactionRecord `json:"records"`
	TopK    int                        `json:"topK,omitempty"`
	Model   string                     `json:"model,omitempty"`
}

type batchResponse struct {
	Explanations []struct {
		Rules    []string                   `json:"rules"`
		Metadata domain.ExplanationMetadata `json:"metadata"`
	} `json:"explanations"`
}

// Report aggregates results across batches.
type Report struct {
	mu sync.Mutex

	Records    int
	Batches    int
	Errors     int
	Statuses   map[string]int
	RulesFired map[string]int
	LatencyMs  stats.Float64Data
}

func newReport() *Report {
	return &Report{Statuses: map[string]int{}, RulesFired: map[string]int{}}
}

func (r *Report) add(resp *batchResponse, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Batches++
	r.LatencyMs = append(r.LatencyMs, float64(elapsed.Milliseconds()))
	for _, e := range resp.Explanations {
		r.Records++
		r.Statuses[e.Metadata.NarrativeStatus]++
		for _, id := range e.Rules {
			r.RulesFired[id]++
		}
	}
}

func (r *Report) fail() {
	r.mu.Lock()
	r.Errors++
	r.mu.Unlock()
}

func main() {
	csvPath := flag.String("csv", "", "path to scored transactions CSV")
	baseURL := flag.String("url", "http://localhost:8080", "fraudlens base URL")
	tenantID := flag.String("tenant", "loadgen", "tenant ID for requests")
	limit := flag.Int("limit", 0, "maximum records to send (0 = all)")
	batchSize := flag.Int("batch", 50, "records per request")
	workers := flag.Int("workers", 4, "concurrent requests")
	topK := flag.Int("top-k", 0, "top features per record (0 = server default)")
	model := flag.String("model", "", "text-generation model override")
	verbose := flag.Bool("verbose", false, "print each batch result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: loadgen -csv scored.csv [-url http://localhost:8080]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: fraudlens not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}

	records, err := ingest.ReadFile(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if *limit > 0 && len(records) > *limit {
		records = records[:*limit]
	}
	fmt.Printf("Loaded %d records from %s\n", len(records), *csvPath)

	start := time.Now()
	report := run(records, *baseURL, *tenantID, *batchSize, *workers, *topK, *model, *verbose)
	printReport(report, time.Since(start))
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

func run(records []domain.TransactionRecord, baseURL, tenantID string, batchSize, workers, topK int, model string, verbose bool) *Report {
	if batchSize < 1 {
		batchSize = 1
	}
	report := newReport()
	work := make(chan []domain.TransactionRecord)
	client := &http.Client{Timeout: 5 * time.Minute}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range work {
				start := time.Now()
				resp, err := postBatch(client, baseURL, tenantID, batchRequest{Records: chunk, TopK: topK, Model: model})
				if err != nil {
					report.fail()
					if verbose {
						fmt.Printf("ERROR: batch starting %s: %v\n", chunk[0].ID, err)
					}
					continue
				}
				report.add(resp, time.Since(start))
				if verbose {
					fmt.Printf("batch starting %s: %d records in %v\n", chunk[0].ID, len(resp.Explanations), time.Since(start).Round(time.Millisecond))
				}
			}
		}()
	}

	for i := 0; i < len(records); i += batchSize {
		end := min(i+batchSize, len(records))
		work <- records[i:end]
	}
	close(work)
	wg.Wait()
	return report
}

func postBatch(client *http.Client, baseURL, tenantID string, req batchRequest) (*batchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/explain/batch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var out batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func printReport(r *Report, duration time.Duration) {
	fmt.Println("\nRESULTS")
	fmt.Printf("  Records:   %d\n", r.Records)
	fmt.Printf("  Batches:   %d\n", r.Batches)
	fmt.Printf("  Errors:    %d\n", r.Errors)

	fmt.Println("\nNARRATIVES")
	for _, s := range []string{domain.NarrativeGenerated, domain.NarrativeCached, domain.NarrativeBenign, domain.NarrativeFailed} {
		fmt.Printf("  %-10s %d\n", s+":", r.Statuses[s])
	}

	fmt.Println("\nRULES FIRED")
	for id, n := range r.RulesFired {
		fmt.Printf("  %-28s %d\n", id, n)
	}

	fmt.Println("\nPERFORMANCE")
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	if len(r.LatencyMs) > 0 {
		mean, _ := stats.Mean(r.LatencyMs)
		p95, _ := stats.Percentile(r.LatencyMs, 95)
		fmt.Printf("  Batch latency: mean %.1f ms, p95 %.1f ms\n", mean, p95)
		fmt.Printf("  Throughput:    %.2f records/sec\n", float64(r.Records)/duration.Seconds())
	}
	fmt.Println()
}
