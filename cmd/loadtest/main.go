package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	idempotencyHeader = "Idempotency-Key"
	scenarioMethod    = "scenario"
)

type config struct {
	baseURL       string
	adminEmail    string
	adminPassword string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	timeout       time.Duration
	stock         int
	qty           int
	outputPath    string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

// stockReport сравнивает остаток товара до и после прогона.
type stockReport struct {
	ProductID    string `json:"product_id"`
	InitialStock int    `json:"initial_stock"`
	FinalStock   int    `json:"final_stock"`
	UnitsSold    int64  `json:"units_sold"`
	Consistent   bool   `json:"consistent"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	PlacedOrders      int64                   `json:"placed_orders"`
	SoldOut           int64                   `json:"sold_out"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
	Stock             stockReport             `json:"stock"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
	placed  int64
	soldOut int64
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
	}
}

// record учитывает вызов. 409 на оформлении заказа считается ожидаемым исходом,
// а не ошибкой: товар просто закончился.
func (c *collector) record(method string, latency time.Duration, code int, expected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{
			codes: make(map[string]int64),
		}
		c.methods[method] = stats
	}

	stats.calls++
	if expected {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[codeLabel(code)]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) recordOutcome(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch code {
	case http.StatusCreated:
		c.placed++
	case http.StatusConflict:
		c.soldOut++
	}
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		PlacedOrders:    c.placed,
		SoldOut:         c.soldOut,
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	if scenarioStats := c.methods[scenarioMethod]; scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		codesCopy := make(map[string]int64, len(stats.codes))
		for code, count := range stats.codes {
			codesCopy[code] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Codes:     codesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func codeLabel(code int) string {
	if code == 0 {
		return "transport_error"
	}
	return strconv.Itoa(code)
}

func parseConfig(args []string) (config, error) {
	var cfg config
	var timeoutValue string
	var durationValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "bakery api base URL")
	fs.StringVar(&cfg.adminEmail, "admin-email", "admin@bakery.local", "admin account used to create the probe product")
	fs.StringVar(&cfg.adminPassword, "admin-password", "", "admin password (fallback: ADMIN_PASSWORD)")
	fs.IntVar(&cfg.total, "total", 400, "total checkouts in count mode; in duration mode only used when explicitly set")
	fs.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 1m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent shoppers")
	fs.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	fs.IntVar(&cfg.stock, "stock", 100, "initial stock of the probe product")
	fs.IntVar(&cfg.qty, "qty", 1, "units per order")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.adminPassword == "" {
		cfg.adminPassword = os.Getenv("ADMIN_PASSWORD")
	}

	if cfg.baseURL == "" {
		return cfg, errors.New("url is required")
	}
	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.stock < 0 {
		return cfg, errors.New("stock must be >= 0")
	}
	if cfg.qty <= 0 {
		return cfg, errors.New("qty must be > 0")
	}
	if strings.TrimSpace(cfg.adminEmail) == "" || cfg.adminPassword == "" {
		return cfg, errors.New("admin-email and admin-password are required")
	}

	return cfg, nil
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result, err := run(context.Background(), cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || !result.Stock.Consistent {
		os.Exit(1)
	}
}

// run создаёт товар с ограниченным остатком и конкурентно раскупает его.
// Проданные единицы и итоговый остаток должны сойтись с начальным остатком.
func run(ctx context.Context, cfg config) (report, error) {
	client := &apiClient{
		baseURL: cfg.baseURL,
		timeout: cfg.timeout,
		http: &http.Client{Transport: &http.Transport{
			MaxIdleConns:        cfg.concurrency * 2,
			MaxIdleConnsPerHost: cfg.concurrency * 2,
		}},
	}
	col := newCollector()

	adminToken, err := client.login(ctx, cfg.adminEmail, cfg.adminPassword, col)
	if err != nil {
		return report{}, fmt.Errorf("admin login: %w", err)
	}
	productID, err := client.createProbeProduct(ctx, adminToken, cfg.stock, col)
	if err != nil {
		return report{}, fmt.Errorf("create probe product: %w", err)
	}

	runID := uuid.NewString()[:8]
	tokens := make([]string, cfg.concurrency)
	for i := range tokens {
		email := fmt.Sprintf("lt-%s-%d@load.test", runID, i)
		if tokens[i], err = client.register(ctx, email, col); err != nil {
			return report{}, fmt.Errorf("register shopper %d: %w", i, err)
		}
	}

	startedAt := time.Now()
	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			for id := range jobs {
				runScenario(ctx, client, token, productID, cfg.qty, fmt.Sprintf("lt-%s-%d", runID, id), col)
			}
		}(tokens[workerID])
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))

	finalStock, err := client.productStock(ctx, productID, col)
	if err != nil {
		return result, fmt.Errorf("read final stock: %w", err)
	}
	result.Stock = checkStock(productID, cfg.stock, finalStock, result.PlacedOrders, cfg.qty)
	return result, nil
}

func checkStock(productID string, initial, final int, placed int64, qty int) stockReport {
	sold := placed * int64(qty)
	return stockReport{
		ProductID:    productID,
		InitialStock: initial,
		FinalStock:   final,
		UnitsSold:    sold,
		Consistent:   final >= 0 && int64(initial)-sold == int64(final),
	}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(ctx context.Context, client *apiClient, token, productID string, qty int, key string, col *collector) {
	start := time.Now()
	// ошибка уже учтена в PlaceOrder, для сценария важен только код
	code, _ := client.placeOrder(ctx, token, productID, qty, key, col)
	expected := code == http.StatusCreated || code == http.StatusConflict
	col.record(scenarioMethod, time.Since(start), code, expected)
	if expected {
		col.recordOutcome(code)
	}
}

type apiClient struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// do выполняет запрос и декодирует JSON-ответ в out, если он не nil.
func (c *apiClient) do(ctx context.Context, method, path, token string, headers map[string]string, body, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}

func (c *apiClient) call(ctx context.Context, name, method, path, token string, headers map[string]string, body, out any, col *collector, want ...int) (int, error) {
	start := time.Now()
	code, err := c.do(ctx, method, path, token, headers, body, out)
	ok := err == nil && containsCode(want, code)
	col.record(name, time.Since(start), code, ok)
	if err != nil {
		return code, err
	}
	if !ok {
		return code, fmt.Errorf("%s: unexpected status %d", name, code)
	}
	return code, nil
}

func (c *apiClient) login(ctx context.Context, email, password string, col *collector) (string, error) {
	var resp struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	body := map[string]string{"email": email, "password": password}
	if _, err := c.call(ctx, "Login", http.MethodPost, "/api/auth/login", "", nil, body, &resp, col, http.StatusOK); err != nil {
		return "", err
	}
	if resp.Role != "ADMIN" {
		return "", fmt.Errorf("%s is not an admin", email)
	}
	return resp.Token, nil
}

func (c *apiClient) register(ctx context.Context, email string, col *collector) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"name": "Load Shopper", "email": email, "password": "load-test"}
	if _, err := c.call(ctx, "Register", http.MethodPost, "/api/auth/register", "", nil, body, &resp, col, http.StatusCreated); err != nil {
		return "", err
	}
	return resp.Token, nil
}

func (c *apiClient) createProbeProduct(ctx context.Context, token string, stock int, col *collector) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	body := map[string]any{
		"name":        "Load probe " + time.Now().UTC().Format(time.RFC3339),
		"description": "created by loadtest",
		"price":       "1.00",
		"category":    "Loadtest",
		"stock":       stock,
	}
	if _, err := c.call(ctx, "CreateProduct", http.MethodPost, "/api/admin/products", token, nil, body, &resp, col, http.StatusCreated); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("create product returned empty id")
	}
	return resp.ID, nil
}

func (c *apiClient) placeOrder(ctx context.Context, token, productID string, qty int, key string, col *collector) (int, error) {
	body := map[string]any{
		"items":           []map[string]any{{"productId": productID, "quantity": qty}},
		"deliveryAddress": "1 Load Street",
		"deliveryCity":    "Testville",
		"deliveryZip":     "00000",
		"deliveryPhone":   "+10000000000",
	}
	headers := map[string]string{idempotencyHeader: key}
	return c.call(ctx, "PlaceOrder", http.MethodPost, "/api/orders", token, headers, body, nil, col,
		http.StatusCreated, http.StatusConflict)
}

func (c *apiClient) productStock(ctx context.Context, productID string, col *collector) (int, error) {
	var resp struct {
		Stock int `json:"stock"`
	}
	if _, err := c.call(ctx, "GetProduct", http.MethodGet, "/api/products/"+productID, "", nil, nil, &resp, col, http.StatusOK); err != nil {
		return 0, err
	}
	return resp.Stock, nil
}

func containsCode(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(out io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(out, "Load test summary")
	_, _ = fmt.Fprintf(out, "run=%s total=%d placed=%d sold_out=%d failed=%d error_rate=%.4f\n",
		runTarget(cfg),
		result.TotalScenarios,
		result.PlacedOrders,
		result.SoldOut,
		result.FailedScenarios,
		result.ErrorRate,
	)
	_, _ = fmt.Fprintf(out, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(out, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)
	_, _ = fmt.Fprintf(out, "stock: initial=%d sold=%d final=%d consistent=%t\n",
		result.Stock.InitialStock,
		result.Stock.UnitsSold,
		result.Stock.FinalStock,
		result.Stock.Consistent,
	)

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == scenarioMethod {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		_, _ = fmt.Fprintf(out,
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
