package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clinicaonline/scheduling/internal/identity"
)

// simulate hammers the booking endpoint with concurrent patients fighting
// over the same few slots. Run it against a seeded api-server and check
// that successes + conflicts add up while the store never holds two
// occupying appointments for one slot.

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	SlotLimit    int
	SpecialistID uuid.UUID
	SpecialtyID  uuid.UUID
	JWTSecret    string
}

type slotDTO struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))

	idx := func(pct int) int {
		i := len(latencies) * pct / 100
		if i >= len(latencies) {
			i = len(latencies) - 1
		}
		return i
	}
	return avg, latencies[idx(50)], latencies[idx(95)]
}

func main() {
	log.SetFlags(log.LstdFlags)

	cfg, err := loadSimConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	issuer := identity.NewTokenVerifier(cfg.JWTSecret)

	browseToken, err := issuer.Issue(identity.Actor{ID: uuid.New(), Role: identity.RolePatient}, time.Hour)
	if err != nil {
		log.Fatalf("issue browse token: %v", err)
	}

	slots, err := fetchSlots(cfg, browseToken)
	if err != nil {
		log.Fatalf("fetch slots: %v", err)
	}
	if len(slots) == 0 {
		log.Fatal("no open slots for that specialist/specialty, seed first")
	}
	if len(slots) > cfg.SlotLimit {
		slots = slots[:cfg.SlotLimit]
	}
	log.Printf("racing %d workers over %d slots for %s", cfg.Workers, len(slots), cfg.Duration)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	metrics := &OperationMetrics{}
	var wg sync.WaitGroup

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker(ctx, cfg, issuer, slots, metrics)
		}()
	}
	wg.Wait()

	avg, p50, p95 := metrics.Stats()
	log.Printf("bookings total=%d success=%d conflict=%d error=%d",
		metrics.Total, metrics.Success, metrics.Conflict, metrics.Error)
	log.Printf("latency avg=%s p50=%s p95=%s", avg, p50, p95)

	if metrics.Success > int64(len(slots)) {
		log.Printf("WARNING: more successful bookings (%d) than distinct slots (%d), double booking suspected",
			metrics.Success, len(slots))
	}
}

func runWorker(ctx context.Context, cfg SimConfig, issuer *identity.TokenVerifier, slots []slotDTO, metrics *OperationMetrics) {
	// Each worker is its own patient identity.
	token, err := issuer.Issue(identity.Actor{ID: uuid.New(), Role: identity.RolePatient}, time.Hour)
	if err != nil {
		log.Printf("issue worker token: %v", err)
		return
	}

	client := &http.Client{Timeout: 10 * time.Second}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		slot := slots[rand.Intn(len(slots))]
		body, _ := json.Marshal(map[string]string{
			"specialist_id": cfg.SpecialistID.String(),
			"specialty_id":  cfg.SpecialtyID.String(),
			"date":          slot.Date,
			"time":          slot.Time,
		})

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.APIBaseURL+"/appointments", bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.Record(time.Since(start), 0)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		metrics.Record(time.Since(start), resp.StatusCode)
	}
}

func fetchSlots(cfg SimConfig, token string) ([]slotDTO, error) {
	url := fmt.Sprintf("%s/specialists/%s/slots?specialty=%s",
		cfg.APIBaseURL, cfg.SpecialistID, cfg.SpecialtyID)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("slot listing returned %d: %s", resp.StatusCode, b)
	}

	var slots []slotDTO
	if err := json.NewDecoder(resp.Body).Decode(&slots); err != nil {
		return nil, err
	}
	return slots, nil
}

func loadSimConfig() (SimConfig, error) {
	cfg := SimConfig{
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080"),
		Duration:   10 * time.Second,
		Workers:    20,
		SlotLimit:  5,
		JWTSecret:  os.Getenv("JWT_SECRET"),
	}
	if cfg.JWTSecret == "" {
		return SimConfig{}, fmt.Errorf("JWT_SECRET is required")
	}

	var err error
	if cfg.SpecialistID, err = uuid.Parse(os.Getenv("SPECIALIST_ID")); err != nil {
		return SimConfig{}, fmt.Errorf("SPECIALIST_ID must be a valid UUID")
	}
	if cfg.SpecialtyID, err = uuid.Parse(os.Getenv("SPECIALTY_ID")); err != nil {
		return SimConfig{}, fmt.Errorf("SPECIALTY_ID must be a valid UUID")
	}

	if v := os.Getenv("SIM_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Duration = d
		}
	}
	if v := os.Getenv("SIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("SIM_SLOT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SlotLimit = n
		}
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
