// Benchmark tool for replaying underwriting case files against Harrier.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/cases.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labelled applicant cases (with the expected eligibility)
//   2. Sends each case to Harrier for underwriting
//   3. Compares Harrier's eligibility with the expected label
//   4. Calculates agreement per class, pricing coverage and latency
//
// CSV columns: age, gender, tobacco, face_amount, carrier_id, product_id,
// answers (JSON object keyed by condition code), expected (accept, refer
// or decline).
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Case represents one labelled row from a case file.
type Case struct {
	Age        int
	Gender     string
	Tobacco    string
	FaceAmount int64
	CarrierID  string
	ProductID  string
	Answers    map[string]map[string]any
	Expected   string
}

// UnderwriteRequest is the Harrier API request format.
type UnderwriteRequest struct {
	Applicant  Applicant `json:"applicant"`
	Target     Target    `json:"target"`
	FaceAmount int64     `json:"faceAmount,omitempty"`
}

type Applicant struct {
	Age     int                       `json:"age"`
	Gender  string                    `json:"gender"`
	Tobacco string                    `json:"tobacco,omitempty"`
	Answers map[string]map[string]any `json:"answers,omitempty"`
}

type Target struct {
	CarrierID string `json:"carrierId"`
	ProductID string `json:"productId"`
}

// UnderwriteResponse is the subset of the decision the benchmark reads.
type UnderwriteResponse struct {
	ID      string `json:"id"`
	Outcome struct {
		Eligibility string   `json:"eligibility"`
		HealthClass string   `json:"healthClass"`
		Reasons     []string `json:"reasons"`
	} `json:"outcome"`
	MonthlyPremium float64 `json:"monthlyPremium"`
	PremiumStatus  string  `json:"premiumStatus"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	Agreements    int64
	Disagreements int64

	ExpectedAccept  int64
	ExpectedRefer   int64
	ExpectedDecline int64

	GotAccept  int64
	GotRefer   int64
	GotDecline int64

	Priced       int64
	NotAvailable int64

	TotalProcessed int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labelled case CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Harrier base URL")
	limit := flag.Int("limit", 10000, "Maximum cases to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each case result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/cases.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          HARRIER BENCHMARK - Underwriting Replay              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Harrier URL: %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Harrier not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Harrier is running:")
		fmt.Println("  cd harrier && go run cmd/harrier/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Harrier is healthy")

	fmt.Printf("\nReading cases from %s...\n", *csvPath)
	cases, err := readCaseCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d cases\n", len(cases))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(cases, *baseURL, *workers, *verbose)
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

func readCaseCSV(path string, limit int) ([]Case, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	var cases []Case
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		age, _ := strconv.Atoi(record[colIndex["age"]])
		face, _ := strconv.ParseInt(record[colIndex["face_amount"]], 10, 64)

		var answers map[string]map[string]any
		if idx, ok := colIndex["answers"]; ok && record[idx] != "" {
			if err := json.Unmarshal([]byte(record[idx]), &answers); err != nil {
				continue
			}
		}

		c := Case{
			Age:        age,
			Gender:     record[colIndex["gender"]],
			FaceAmount: face,
			CarrierID:  record[colIndex["carrier_id"]],
			ProductID:  record[colIndex["product_id"]],
			Answers:    answers,
			Expected:   strings.ToLower(record[colIndex["expected"]]),
		}
		if idx, ok := colIndex["tobacco"]; ok {
			c.Tobacco = record[idx]
		}

		cases = append(cases, c)

		if limit > 0 && len(cases) >= limit {
			break
		}
	}

	return cases, nil
}

func runBenchmark(cases []Case, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan Case, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for c := range work {
				start := time.Now()
				result, err := underwriteCase(client, baseURL, c)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s/%s age=%d -> %v\n", c.CarrierID, c.ProductID, c.Age, err)
					}
					continue
				}

				switch c.Expected {
				case "accept":
					atomic.AddInt64(&metrics.ExpectedAccept, 1)
				case "refer":
					atomic.AddInt64(&metrics.ExpectedRefer, 1)
				case "decline":
					atomic.AddInt64(&metrics.ExpectedDecline, 1)
				}

				got := result.Outcome.Eligibility
				switch got {
				case "accept":
					atomic.AddInt64(&metrics.GotAccept, 1)
				case "refer":
					atomic.AddInt64(&metrics.GotRefer, 1)
				case "decline":
					atomic.AddInt64(&metrics.GotDecline, 1)
				}

				switch result.PremiumStatus {
				case "priced":
					atomic.AddInt64(&metrics.Priced, 1)
				case "rate_not_available":
					atomic.AddInt64(&metrics.NotAvailable, 1)
				}

				if got == c.Expected {
					atomic.AddInt64(&metrics.Agreements, 1)
				} else {
					atomic.AddInt64(&metrics.Disagreements, 1)
				}

				if verbose {
					status := "✓"
					if got != c.Expected {
						status = "✗"
					}
					fmt.Printf("%s age=%-3d | %-10s | expected %-7s | got %-7s (%s) | $%.2f/mo\n",
						status,
						c.Age,
						c.ProductID,
						c.Expected,
						got,
						result.Outcome.HealthClass,
						result.MonthlyPremium,
					)
				}
			}
		}()
	}

	for _, c := range cases {
		work <- c
	}
	close(work)

	wg.Wait()

	return metrics
}

func underwriteCase(client *http.Client, baseURL string, c Case) (*UnderwriteResponse, error) {
	req := UnderwriteRequest{
		Applicant: Applicant{
			Age:     c.Age,
			Gender:  c.Gender,
			Tobacco: c.Tobacco,
			Answers: c.Answers,
		},
		Target: Target{
			CarrierID: c.CarrierID,
			ProductID: c.ProductID,
		},
		FaceAmount: c.FaceAmount,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/underwrite", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result UnderwriteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 CASE STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	fmt.Printf("   Expected:         accept=%d refer=%d decline=%d\n", m.ExpectedAccept, m.ExpectedRefer, m.ExpectedDecline)
	fmt.Printf("   Returned:         accept=%d refer=%d decline=%d\n", m.GotAccept, m.GotRefer, m.GotDecline)

	agreement := float64(0)
	scored := m.Agreements + m.Disagreements
	if scored > 0 {
		agreement = float64(m.Agreements) / float64(scored)
	}

	fmt.Printf("\n🎯 AGREEMENT\n")
	fmt.Printf("   Agreements:     %d / %d (%.2f%%)\n", m.Agreements, scored, agreement*100)
	fmt.Printf("   Disagreements:  %d\n", m.Disagreements)

	fmt.Printf("\n💰 PRICING\n")
	fmt.Printf("   Priced:             %d\n", m.Priced)
	fmt.Printf("   Rate Not Available: %d\n", m.NotAvailable)
	if m.Priced+m.NotAvailable > 0 {
		coverage := float64(m.Priced) / float64(m.Priced+m.NotAvailable) * 100
		fmt.Printf("   Grid Coverage:      %.2f%%\n", coverage)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f cases/sec\n", tps)
	}

	fmt.Printf("\n💡 INTERPRETATION\n")
	if agreement >= 0.95 {
		fmt.Println("   ✅ Excellent agreement with the labelled outcomes")
	} else if agreement >= 0.8 {
		fmt.Println("   ⚠️  Good agreement, review the disagreeing cases")
	} else {
		fmt.Println("   ❌ Low agreement, rule configuration likely diverges from labels")
	}

	fmt.Println()
}
