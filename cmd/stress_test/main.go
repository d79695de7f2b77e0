package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type stockView struct {
	ID       int64 `json:"id"`
	Quantity int   `json:"quantity"`
	Version  int64 `json:"version"`
}

type errorView struct {
	Code string `json:"code"`
}

type stressClient struct {
	baseURL    string
	adminToken string
	http       *http.Client
}

func main() {
	var (
		baseURL       = flag.String("addr", "http://localhost:8080", "inventory HTTP base URL")
		productID     = flag.Int64("product", 1001, "product id to hammer")
		initialStock  = flag.Int("stock", 20, "stock to set before the run")
		totalRequests = flag.Int("requests", 50, "number of requests")
		concurrency   = flag.Int("concurrency", 50, "max in-flight requests")
		mode          = flag.String("mode", "deduct", "deduct or reserve")
		adminToken    = flag.String("admin-token", os.Getenv("ADMIN_TOKEN"), "admin token for resetting stock")
	)
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	c := &stressClient{
		baseURL:    *baseURL,
		adminToken: *adminToken,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
	ctx := context.Background()

	// Setup
	stock, err := c.prepare(ctx, *productID, *initialStock)
	if err != nil {
		logger.Fatal("failed to prepare stock", zap.Error(err))
	}

	var succeeded, insufficient, conflicts, other atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		g.Go(func() error {
			code, err := c.fire(gctx, *mode, *productID, stock.ID)
			switch {
			case err != nil:
				logger.Warn("request failed", zap.Error(err))
				other.Add(1)
			case code == "":
				succeeded.Add(1)
			case code == "insufficient_stock":
				insufficient.Add(1)
			case code == "concurrent_modification":
				conflicts.Add(1)
			default:
				other.Add(1)
			}
			return nil
		})
	}
	g.Wait()
	elapsed := time.Since(start)

	final, err := c.get(ctx, *productID)
	if err != nil {
		logger.Fatal("failed to read final stock", zap.Error(err))
	}

	// Results
	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Mode:             %s\n", *mode)
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", succeeded.Load())
	fmt.Printf("Insufficient:     %d\n", insufficient.Load())
	fmt.Printf("Conflicts:        %d\n", conflicts.Load())
	fmt.Printf("Other Failures:   %d\n", other.Load())
	fmt.Printf("Final Quantity:   %d (version %d)\n", final.Quantity, final.Version)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	ok := true
	if int(succeeded.Load()) > *initialStock {
		fmt.Printf("FAIL: oversold, %d successes for %d units\n", succeeded.Load(), *initialStock)
		ok = false
	}
	if final.Quantity != *initialStock-int(succeeded.Load()) {
		fmt.Printf("FAIL: expected final quantity %d, got %d\n", *initialStock-int(succeeded.Load()), final.Quantity)
		ok = false
	}
	if !ok {
		os.Exit(1)
	}
	fmt.Println("PASS: no oversell, final quantity matches committed deductions")
}

// prepare creates the stock if missing, otherwise resets it via the admin API.
func (c *stressClient) prepare(ctx context.Context, productID int64, quantity int) (stockView, error) {
	var created stockView
	status, err := c.call(ctx, http.MethodPost, "/api/stocks",
		map[string]any{"product_id": productID, "quantity": quantity}, &created, nil)
	if err != nil {
		return stockView{}, err
	}
	if status == http.StatusCreated {
		return created, nil
	}

	var reset stockView
	status, err = c.call(ctx, http.MethodPut, fmt.Sprintf("/api/admin/stocks/%d", productID),
		map[string]any{"quantity": quantity}, &reset, nil)
	if err != nil {
		return stockView{}, err
	}
	if status != http.StatusOK {
		return stockView{}, fmt.Errorf("reset stock: status %d", status)
	}
	return reset, nil
}

func (c *stressClient) fire(ctx context.Context, mode string, productID, stockID int64) (string, error) {
	path := fmt.Sprintf("/api/stocks/%d/deduct", productID)
	body := map[string]any{"amount": 1}
	if mode == "reserve" {
		path = fmt.Sprintf("/api/stocks/%d/reserve", productID)
		body["request_id"] = uuid.NewString()
		body["stock_id"] = stockID
	}

	var failure errorView
	status, err := c.call(ctx, http.MethodPost, path, body, nil, &failure)
	if err != nil {
		return "", err
	}
	if status == http.StatusOK {
		return "", nil
	}
	return failure.Code, nil
}

func (c *stressClient) get(ctx context.Context, productID int64) (stockView, error) {
	var s stockView
	status, err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/stocks/%d", productID), nil, &s, nil)
	if err != nil {
		return stockView{}, err
	}
	if status != http.StatusOK {
		return stockView{}, fmt.Errorf("get stock: status %d", status)
	}
	return s, nil
}

func (c *stressClient) call(ctx context.Context, method, path string, in, okOut, errOut any) (int, error) {
	var buf bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	out := okOut
	if resp.StatusCode >= 300 {
		out = errOut
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
