package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/i5heu/GoBoundedQueue/internal/testbench"
	"github.com/i5heu/GoBoundedQueue/pkg/buffered"
	"github.com/i5heu/GoBoundedQueue/pkg/casring"
	"github.com/i5heu/GoBoundedQueue/pkg/mutexring"
	"github.com/i5heu/GoBoundedQueue/pkg/queue"
	"github.com/i5heu/GoBoundedQueue/pkg/spscring"
)

// BenchmarkResult holds results for one test run.
type BenchmarkResult struct {
	Implementation      string  `json:"implementation"`
	NumProducers        int     `json:"num_producers"`
	NumConsumers        int     `json:"num_consumers"`
	NumMessages         int64   `json:"num_messages"`          // produced count
	NumMessagesConsumed int64   `json:"num_messages_consumed"` // consumed count
	TestDuration        string  `json:"test_duration"`         // e.g. "10s"
	ActualElapsed       string  `json:"actual_elapsed"`        // measured time
	Throughput          float64 `json:"throughput_msgs_sec"`   // based on consumed count
	Timestamp           int64   `json:"timestamp"`
	GoVersion           string  `json:"go_version"`
}

// SystemInfo holds system information.
type SystemInfo struct {
	NumCPU            int     `json:"num_cpu"`
	TrueCPU           int     `json:"true_cpu,omitempty"`
	SimulatedCPUCount int     `json:"simulated_cpu_count,omitempty"`
	CPUModel          string  `json:"cpu_model,omitempty"`
	CPUSpeedMHz       float64 `json:"cpu_speed_mhz,omitempty"`
	GOARCH            string  `json:"go_arch"`
	TotalMemory       uint64  `json:"total_memory_bytes,omitempty"`
}

// FullReport represents a complete test session.
type FullReport struct {
	SessionTime string            `json:"session_time"`
	SystemInfo  SystemInfo        `json:"system_info"`
	Benchmarks  []BenchmarkResult `json:"benchmarks"`
}

// Implementation represents a queue implementation under test.
type Implementation[T any, Q queue.Interface[T]] struct {
	name        string
	description string
	pkgName     string
	features    []string
	newQueue    func(capacity uint64) Q
}

// hasFeature reports whether the implementation advertises the feature.
func (impl Implementation[T, Q]) hasFeature(feature string) bool {
	for _, f := range impl.features {
		if f == feature {
			return true
		}
	}
	return false
}

// supportsConfig reports whether the implementation may be driven with the
// given concurrency. SPSC-only queues must be run with one producer and
// one consumer; anything else would violate their contract, not test it.
func (impl Implementation[T, Q]) supportsConfig(cfg testbench.Config) bool {
	if impl.hasFeature("MPMC") {
		return true
	}
	return cfg.NumProducers == 1 && cfg.NumConsumers == 1
}

// outputMarkdownTable loads the JSON file and outputs a Markdown table.
func outputMarkdownTable(jsonFile string) {
	data, err := os.ReadFile(jsonFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading JSON file %q: %v\n", jsonFile, err)
		os.Exit(1)
	}
	var sessions []FullReport
	if err := json.Unmarshal(data, &sessions); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshalling JSON: %v\n", err)
		os.Exit(1)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(os.Stderr, "No sessions found in JSON.")
		os.Exit(1)
	}
	// Use the last session for the table.
	lastSession := sessions[len(sessions)-1]
	implMetaMap := make(map[string]Implementation[*int, queue.Interface[*int]])
	for _, impl := range getImplementations() {
		implMetaMap[impl.name] = impl
	}
	type tableRow struct {
		implementation string
		pkgName        string
		features       string
		concurrency    string
		throughput     float64
	}
	var rows []tableRow
	for _, bench := range lastSession.Benchmarks {
		meta, ok := implMetaMap[bench.Implementation]
		var pkgName, features string
		if ok {
			pkgName = meta.pkgName
			features = strings.Join(meta.features, ", ")
		}
		rows = append(rows, tableRow{
			implementation: bench.Implementation,
			pkgName:        pkgName,
			features:       features,
			concurrency:    fmt.Sprintf("%dp/%dc", bench.NumProducers, bench.NumConsumers),
			throughput:     bench.Throughput,
		})
	}
	// Sort rows by throughput descending.
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].throughput > rows[j].throughput
	})
	fmt.Println("## Last Session Benchmark Summary")
	fmt.Println()
	fmt.Println("| Implementation          | Package   | Features                       | Concurrency | Throughput (msgs/sec) |")
	fmt.Println("|-------------------------|-----------|--------------------------------|-------------|-----------------------|")
	for _, r := range rows {
		fmt.Printf("| %-23s | %-9s | %-30s | %-11s | %21.0f |\n",
			r.implementation, r.pkgName, r.features, r.concurrency, r.throughput)
	}
}

func main() {
	// Flags.
	testIterations := flag.Int("iter", 5, "Number of test iterations per concurrency setting")
	cpuMaxFlag := flag.Int("cpu", 0, "If non-zero, test only that GOMAXPROCS value; if 0, test common CPU/vCPU values up to runtime.NumCPU()")
	jsonExport := flag.Bool("json", false, "Export results as JSON to test-results.json")
	highConcurrency := flag.Bool("high-concurrency", false, "Include high concurrency configurations")
	markdownTable := flag.Bool("markdown-table", false, "Output markdown table from test-results.json and exit")
	jsonFileForMarkdown := flag.String("jsonfile", "test-results.json", "Path to JSON file for markdown table")
	progressFlag := flag.Bool("progress", false, "Display a progress bar with ETA")
	flag.Parse()

	if *markdownTable {
		outputMarkdownTable(*jsonFileForMarkdown)
		return
	}

	trueCpuCount := runtime.NumCPU()
	var cpuSettings []int
	// Define the common CPU/vCPU settings.
	commonCPUs := []int{1, 2, 3, 4, 6, 8, 12, 16, 32, 48, 56, 64, 96, 128, 192, 256, 384, 512}

	if *cpuMaxFlag > 0 {
		desired := *cpuMaxFlag
		if desired > trueCpuCount {
			desired = trueCpuCount
		}
		cpuSettings = []int{desired}
	} else {
		for _, v := range commonCPUs {
			if v <= trueCpuCount {
				cpuSettings = append(cpuSettings, v)
			}
		}
	}

	// Define concurrency configurations. The 1p/1c configuration is the
	// only one the SPSC ring participates in.
	concurrencyConfigs := []testbench.Config{
		{NumProducers: 1, NumConsumers: 1},
		{NumProducers: 2, NumConsumers: 2},
		{NumProducers: 10, NumConsumers: 10},
		{NumProducers: 50, NumConsumers: 50},
	}
	if *highConcurrency {
		concurrencyConfigs = append(concurrencyConfigs,
			testbench.Config{NumProducers: 100, NumConsumers: 100},
			testbench.Config{NumProducers: 250, NumConsumers: 250},
			testbench.Config{NumProducers: 500, NumConsumers: 500},
		)
	}

	// Test duration for each iteration.
	testDuration := 5 * time.Second

	// Calculate total number of runs for progress tracking.
	impls := getImplementations()
	runsPerIteration := 0
	for _, cfg := range concurrencyConfigs {
		for _, impl := range impls {
			if impl.supportsConfig(cfg) {
				runsPerIteration++
			}
		}
	}
	totalTests := runsPerIteration * len(cpuSettings) * (*testIterations)

	var bar *progressbar.ProgressBar
	if *progressFlag {
		bar = progressbar.NewOptions(totalTests,
			progressbar.OptionSetDescription("benchmarking"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionSetElapsedTime(true),
		)
	}

	var allSessions []FullReport

	// Iterate over the desired GOMAXPROCS settings.
	for _, cpus := range cpuSettings {
		runtime.GOMAXPROCS(cpus)
		sysInfo := gatherSystemInfo()
		sysInfo.NumCPU = cpus
		sysInfo.TrueCPU = trueCpuCount
		sysInfo.SimulatedCPUCount = cpus

		fmt.Printf("\n=============================\n")
		fmt.Printf("GOMAXPROCS = %d\n", cpus)
		fmt.Printf("=============================\n")

		var results []BenchmarkResult

		// Loop over each concurrency configuration.
		for _, cfg := range concurrencyConfigs {
			fmt.Printf("  [Concurrency: producers=%d, consumers=%d]\n", cfg.NumProducers, cfg.NumConsumers)
			for iteration := 1; iteration <= *testIterations; iteration++ {
				fmt.Printf("    iteration %d/%d\n", iteration, *testIterations)
				// For each iteration, run each queue implementation.
				for _, impl := range impls {
					if !impl.supportsConfig(cfg) {
						continue
					}
					runtime.GC()
					q := impl.newQueue(1024)
					time.Sleep(250 * time.Millisecond)

					produced, consumed, actualTime := testbench.RunTimedTest(
						q,
						cfg,
						testDuration,
						func(i int) *int {
							v := i
							return &v
						},
					)
					throughput := float64(consumed) / actualTime.Seconds()
					timestamp := time.Now().Unix()

					// Print test result to stdout.
					fmt.Printf("    %s => produced=%d, consumed=%d, throughput=%.0f msg/s, took=%v\n",
						impl.name, produced, consumed, throughput, actualTime)

					if bar != nil {
						bar.Add(1)
					}

					result := BenchmarkResult{
						Implementation:      impl.name,
						NumProducers:        cfg.NumProducers,
						NumConsumers:        cfg.NumConsumers,
						NumMessages:         produced,
						NumMessagesConsumed: consumed,
						TestDuration:        testDuration.String(),
						ActualElapsed:       actualTime.String(),
						Throughput:          throughput,
						Timestamp:           timestamp,
						GoVersion:           runtime.Version(),
					}
					results = append(results, result)
				}
			}
		}

		sessionTime := time.Now().Format(time.RFC3339)
		fr := FullReport{
			SessionTime: sessionTime,
			SystemInfo:  sysInfo,
			Benchmarks:  results,
		}
		allSessions = append(allSessions, fr)
	}

	// After all tests, finish the progress bar line.
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	// If JSON export is requested, append the new sessions to test-results.json.
	if *jsonExport {
		const filename = "test-results.json"
		var previous []FullReport
		if _, err := os.Stat(filename); err == nil {
			data, err := os.ReadFile(filename)
			if err == nil && len(data) > 0 {
				json.Unmarshal(data, &previous)
			}
		}
		updated := append(previous, allSessions...)
		data, err := json.MarshalIndent(updated, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error marshalling JSON:", err)
			os.Exit(1)
		}
		if err = os.WriteFile(filename, data, 0644); err != nil {
			fmt.Fprintln(os.Stderr, "Error writing JSON file:", err)
			os.Exit(1)
		}
		fmt.Printf("\nWrote results to %s\n", filename)
	}
}

// gatherSystemInfo collects basic CPU and memory details.
func gatherSystemInfo() SystemInfo {
	numCPU := runtime.NumCPU()
	goArch := runtime.GOARCH

	var cpuModel string
	var cpuSpeed float64
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		cpuModel = infos[0].ModelName
		cpuSpeed = infos[0].Mhz
	}

	var totalMemory uint64
	if vm, err := mem.VirtualMemory(); err == nil {
		totalMemory = vm.Total
	}

	return SystemInfo{
		NumCPU:      numCPU,
		CPUModel:    cpuModel,
		CPUSpeedMHz: cpuSpeed,
		GOARCH:      goArch,
		TotalMemory: totalMemory,
	}
}

// getImplementations enumerates the queue implementations.
func getImplementations() []Implementation[*int, queue.Interface[*int]] {
	return []Implementation[*int, queue.Interface[*int]]{
		{
			name:        "BoundedSPSCRing",
			pkgName:     "spscring",
			description: "The core bounded ring: lock-free fail-fast FIFO for exactly one producer and one consumer.",
			features:    []string{"SPSC", "FIFO", "Fail-Fast"},
			newQueue: func(capacity uint64) queue.Interface[*int] {
				return spscring.New[*int](capacity)
			},
		},
		{
			name:        "MutexRing",
			pkgName:     "mutexring",
			description: "The same ring layout behind a mutex, safe for any number of producers and consumers.",
			features:    []string{"MPMC", "FIFO", "Fail-Fast", "Mutex"},
			newQueue: func(capacity uint64) queue.Interface[*int] {
				return mutexring.New[*int](capacity)
			},
		},
		{
			name:        "CASRing",
			pkgName:     "casring",
			description: "Lock-free MPMC ring using CAS-based slot reservation with per-cell sequence numbers.",
			features:    []string{"MPMC", "FIFO", "Fail-Fast", "Lock-Free"},
			newQueue: func(capacity uint64) queue.Interface[*int] {
				return casring.New[*int](capacity)
			},
		},
		{
			name:        "Golang Buffered Channel",
			pkgName:     "buffered",
			description: "Baseline: a buffered Go channel with select/default giving fail-fast semantics.",
			features:    []string{"MPMC", "FIFO", "Fail-Fast"},
			newQueue: func(capacity uint64) queue.Interface[*int] {
				return buffered.New[*int](capacity)
			},
		},
	}
}
