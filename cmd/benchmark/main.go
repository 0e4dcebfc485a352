// Benchmark tool for replaying a labelled text corpus against Discern.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/corpus.csv -url http://localhost:8080
//
// The CSV has a header with at least the columns text and expected_level
// (CLEAR, LOW, MEDIUM or HIGH). This tool:
//  1. Sends each text to POST /detect with a pool of workers
//  2. Compares the returned threat_level with the expected level
//  3. Reports accuracy, per-level precision and recall, latency percentiles
//     and throughput
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Levels in report order.
var Levels = []string{"CLEAR", "LOW", "MEDIUM", "HIGH"}

// Sample is one labelled corpus row.
type Sample struct {
	Text     string
	Expected string
}

// DetectRequest is the Discern /detect request format.
type DetectRequest struct {
	Text string `json:"text"`
}

// DetectResponse holds the fields of a threat report the benchmark reads.
type DetectResponse struct {
	ManipulationScore int    `json:"manipulation_score"`
	ThreatLevel       string `json:"threat_level"`
}

// Outcome is the result of one request.
type Outcome struct {
	Expected  string
	Predicted string
	Latency   time.Duration
	Err       error
}

// LevelStats are the per-level counts of the confusion matrix.
type LevelStats struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int
}

// Precision is TP / (TP + FP), or 0 with no predictions.
func (s LevelStats) Precision() float64 {
	if s.TruePositives+s.FalsePositives == 0 {
		return 0
	}
	return float64(s.TruePositives) / float64(s.TruePositives+s.FalsePositives)
}

// Recall is TP / (TP + FN), or 0 with no samples.
func (s LevelStats) Recall() float64 {
	if s.TruePositives+s.FalseNegatives == 0 {
		return 0
	}
	return float64(s.TruePositives) / float64(s.TruePositives+s.FalseNegatives)
}

// Metrics summarise a benchmark run.
type Metrics struct {
	Processed int
	Errors    int
	Correct   int
	Confusion map[string]map[string]int // expected -> predicted -> count
	PerLevel  map[string]LevelStats
	Latencies []time.Duration // sorted
}

// Accuracy is the share of successful requests with the expected level.
func (m *Metrics) Accuracy() float64 {
	ok := m.Processed - m.Errors
	if ok == 0 {
		return 0
	}
	return float64(m.Correct) / float64(ok)
}

// Percentile returns the p-th latency percentile (nearest rank).
func (m *Metrics) Percentile(p float64) time.Duration {
	if len(m.Latencies) == 0 {
		return 0
	}
	rank := int(p/100*float64(len(m.Latencies))+0.5) - 1
	rank = max(0, min(rank, len(m.Latencies)-1))
	return m.Latencies[rank]
}

// Summarize builds the metrics of a run.
func Summarize(outcomes []Outcome) *Metrics {
	m := &Metrics{
		Confusion: make(map[string]map[string]int),
		PerLevel:  make(map[string]LevelStats),
	}
	for _, o := range outcomes {
		m.Processed++
		if o.Err != nil {
			m.Errors++
			continue
		}
		m.Latencies = append(m.Latencies, o.Latency)

		if m.Confusion[o.Expected] == nil {
			m.Confusion[o.Expected] = make(map[string]int)
		}
		m.Confusion[o.Expected][o.Predicted]++

		if o.Expected == o.Predicted {
			m.Correct++
			s := m.PerLevel[o.Expected]
			s.TruePositives++
			m.PerLevel[o.Expected] = s
			continue
		}
		fp := m.PerLevel[o.Predicted]
		fp.FalsePositives++
		m.PerLevel[o.Predicted] = fp
		fn := m.PerLevel[o.Expected]
		fn.FalseNegatives++
		m.PerLevel[o.Expected] = fn
	}
	slices.Sort(m.Latencies)
	return m
}

func main() {
	csvPath := flag.String("csv", "", "Path to labelled CSV corpus")
	baseURL := flag.String("url", "http://localhost:8080", "Discern base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum samples to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each sample result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/corpus.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("DISCERN BENCHMARK - labelled manipulation corpus")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Discern URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Discern not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Discern is running:")
		fmt.Println("  go run ./cmd/discern")
		os.Exit(1)
	}
	fmt.Println("Discern is healthy")

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	samples, err := readCorpus(file, *limit)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d samples\n", len(samples))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	start := time.Now()
	outcomes := runBenchmark(samples, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(start)

	printResults(Summarize(outcomes), duration)
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

// readCorpus reads text,expected_level rows. Rows with an unknown level
// are skipped.
func readCorpus(r io.Reader, limit int) ([]Sample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	textCol, ok1 := colIndex["text"]
	levelCol, ok2 := colIndex["expected_level"]
	if !ok1 || !ok2 {
		return nil, errors.New("header must contain text and expected_level")
	}

	var samples []Sample
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}
		if textCol >= len(record) || levelCol >= len(record) {
			continue
		}

		level := strings.ToUpper(strings.TrimSpace(record[levelCol]))
		if !slices.Contains(Levels, level) {
			continue
		}
		samples = append(samples, Sample{Text: record[textCol], Expected: level})

		if limit > 0 && len(samples) >= limit {
			break
		}
	}
	return samples, nil
}

func runBenchmark(samples []Sample, baseURL, tenantID string, numWorkers int, verbose bool) []Outcome {
	outcomes := make([]Outcome, len(samples))
	client := &http.Client{Timeout: 10 * time.Second}

	var g errgroup.Group
	g.SetLimit(max(numWorkers, 1))
	for i, s := range samples {
		g.Go(func() error {
			start := time.Now()
			result, err := detect(client, baseURL, tenantID, s.Text)
			o := Outcome{Expected: s.Expected, Latency: time.Since(start), Err: err}
			if err == nil {
				o.Predicted = result.ThreatLevel
			}
			outcomes[i] = o

			if verbose {
				printOutcome(s, o, result)
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func printOutcome(s Sample, o Outcome, result *DetectResponse) {
	if o.Err != nil {
		fmt.Printf("ERROR: %.40q -> %v\n", s.Text, o.Err)
		return
	}
	status := "ok "
	if o.Expected != o.Predicted {
		status = "MISS"
	}
	fmt.Printf("%s %-40.40q | expected %-6s | got %-6s (%3d) | %v\n",
		status, s.Text, o.Expected, o.Predicted, result.ManipulationScore, o.Latency.Round(time.Millisecond))
}

func detect(client *http.Client, baseURL, tenantID, text string) (*DetectResponse, error) {
	body, err := json.Marshal(DetectRequest{Text: text})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/detect", bytes.NewReader(body))
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

	var result DetectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Processed:  %d\n", m.Processed)
	fmt.Printf("   Errors:           %d\n", m.Errors)

	fmt.Printf("\nCONFUSION MATRIX (rows expected, columns predicted)\n")
	fmt.Printf("   %-8s", "")
	for _, l := range Levels {
		fmt.Printf("%8s", l)
	}
	fmt.Println()
	for _, exp := range Levels {
		fmt.Printf("   %-8s", exp)
		for _, pred := range Levels {
			fmt.Printf("%8d", m.Confusion[exp][pred])
		}
		fmt.Println()
	}

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Accuracy:   %.4f\n", m.Accuracy())
	for _, l := range Levels {
		s := m.PerLevel[l]
		fmt.Printf("   %-7s precision %.4f  recall %.4f\n", l, s.Precision(), s.Recall())
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	fmt.Printf("   p50 Latency:      %v\n", m.Percentile(50))
	fmt.Printf("   p95 Latency:      %v\n", m.Percentile(95))
	fmt.Printf("   p99 Latency:      %v\n", m.Percentile(99))
	if duration > 0 {
		fmt.Printf("   Throughput:       %.2f req/sec\n", float64(m.Processed)/duration.Seconds())
	}
	fmt.Println()
}
