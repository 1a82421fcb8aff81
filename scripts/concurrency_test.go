//go:build ignore
// +build ignore

// Package main provides a manual concurrency stress test for the loan pickup
// transition.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <admin_id> <loan1_id> [loan2_id ...]
//
// Or use the convenience environment variables:
//
//	ADMIN_ID=<uuid>  LOAN_IDS=<uuid1>,<uuid2>,...  MATERIAL_ID=<uuid>  go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Signs a token for the admin with JWT_SECRET.
//  2. Fires one goroutine per loan, all sending PATCH /loans/{id}/status
//     {"status":"PICKED_UP"} at the same moment.
//  3. Prints how many pickups succeeded vs. were refused for insufficient stock.
//  4. If MATERIAL_ID is set, fetches the material and checks
//     0 <= available_quantity <= total_quantity.
//
// Prerequisites:
//   - Server must be running with the same JWT_SECRET.
//   - The loans must be APPROVED and share a material whose stock cannot
//     cover all of them.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"labloans/internal/middleware"
)

const defaultServerAddr = "http://localhost:8080"

type pickupResult struct {
	LoanID     string
	StatusCode int
	Message    string
	Err        error
}

func main() {
	serverAddr := os.Getenv("SERVER_URL")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET must be set to the server's signing secret")
	}

	adminID := os.Getenv("ADMIN_ID")
	var loanIDs []string
	if env := os.Getenv("LOAN_IDS"); env != "" {
		loanIDs = strings.Split(env, ",")
	}

	args := os.Args[1:]
	if len(args) >= 1 {
		adminID = args[0]
	}
	if len(args) >= 2 {
		loanIDs = args[1:]
	}

	admin, err := uuid.Parse(adminID)
	if err != nil {
		log.Fatal("Usage: ADMIN_ID=<uuid> LOAN_IDS=<l1,l2,...> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <admin_id> <loan1_id> [loan2_id ...]")
	}
	if len(loanIDs) == 0 {
		log.Fatal("At least one loan ID must be provided via LOAN_IDS env or positional args")
	}

	token, err := middleware.SignToken(secret, admin, 10*time.Minute)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}

	fmt.Printf("=== Loan Pickup Concurrency Test ===\n")
	fmt.Printf("Server : %s\n", serverAddr)
	fmt.Printf("Loans  : %d\n\n", len(loanIDs))

	results := make([]pickupResult, len(loanIDs))
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i, id := range loanIDs {
		wg.Add(1)
		go func(idx int, loanID string) {
			defer wg.Done()
			<-start
			results[idx] = attemptPickup(serverAddr, token, strings.TrimSpace(loanID))
		}(i, id)
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)
	wg.Wait()
	fmt.Println("All requests completed.")

	var picked, refused, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] loan=%-38s err=%v\n", r.LoanID, r.Err)
		case r.StatusCode == http.StatusOK:
			picked++
			fmt.Printf("  [PICK] loan=%-38s status=%d\n", r.LoanID, r.StatusCode)
		case r.StatusCode == http.StatusBadRequest:
			refused++
			fmt.Printf("  [STCK] loan=%-38s status=%d error=%q\n", r.LoanID, r.StatusCode, r.Message)
		default:
			failures++
			fmt.Printf("  [FAIL] loan=%-38s status=%d error=%q\n", r.LoanID, r.StatusCode, r.Message)
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Picked up : %d\n", picked)
	fmt.Printf("Refused   : %d\n", refused)
	fmt.Printf("Failures  : %d\n", failures)
	fmt.Printf("Total     : %d\n\n", len(loanIDs))

	if materialID := os.Getenv("MATERIAL_ID"); materialID != "" {
		fmt.Println("--- Invariant Check ---")
		if err := checkMaterial(serverAddr, token, materialID); err != nil {
			fmt.Printf("[VIOLATION] %v\n", err)
			os.Exit(1)
		}
		fmt.Println("available_quantity is within [0, total_quantity].")
	}

	if failures > 0 {
		fmt.Printf("\n[WARNING] %d request(s) failed; check server logs for details.\n", failures)
		os.Exit(1)
	}
}

func attemptPickup(serverAddr, token, loanID string) pickupResult {
	url := fmt.Sprintf("%s/loans/%s/status", serverAddr, loanID)
	req, err := http.NewRequest(http.MethodPatch, url, bytes.NewBufferString(`{"status":"PICKED_UP"}`))
	if err != nil {
		return pickupResult{LoanID: loanID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return pickupResult{LoanID: loanID, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return pickupResult{LoanID: loanID, StatusCode: resp.StatusCode, Err: fmt.Errorf("bad JSON: %s", raw)}
	}
	msg, _ := parsed["error"].(string)
	return pickupResult{LoanID: loanID, StatusCode: resp.StatusCode, Message: msg}
}

func checkMaterial(serverAddr, token, materialID string) error {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/materials/%s", serverAddr, materialID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var m struct {
		TotalQuantity     int `json:"total_quantity"`
		AvailableQuantity int `json:"available_quantity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return err
	}
	fmt.Printf("Material %s: available=%d total=%d\n", materialID, m.AvailableQuantity, m.TotalQuantity)
	if m.AvailableQuantity < 0 || m.AvailableQuantity > m.TotalQuantity {
		return fmt.Errorf("available_quantity %d outside [0, %d]", m.AvailableQuantity, m.TotalQuantity)
	}
	return nil
}
