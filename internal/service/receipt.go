package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"backoffice/internal/config"
)

// ReceiptGuess is the classifier's reading of a payment receipt
type ReceiptGuess struct {
	Amount        string  `json:"amount"`
	PaymentDate   string  `json:"payment_date"`
	PaymentMethod string  `json:"payment_method"`
	IssuerBank    string  `json:"issuer_bank"`
	Confidence    float64 `json:"confidence"`
}

// ReceiptAnalyzer reads a receipt image and guesses its payment fields
type ReceiptAnalyzer interface {
	Analyze(ctx context.Context, fileURL string) (ReceiptGuess, error)
}

type httpReceiptAnalyzer struct {
	url    string
	client *http.Client
}

// NewReceiptAnalyzer returns nil when no analyzer url is configured
func NewReceiptAnalyzer(cfg config.ReceiptConfig) ReceiptAnalyzer {
	if cfg.AnalyzerURL == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &httpReceiptAnalyzer{url: cfg.AnalyzerURL, client: &http.Client{Timeout: timeout}}
}

func (a *httpReceiptAnalyzer) Analyze(ctx context.Context, fileURL string) (ReceiptGuess, error) {
	body, err := json.Marshal(map[string]string{"url": fileURL})
	if err != nil {
		return ReceiptGuess{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return ReceiptGuess{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return ReceiptGuess{}, fmt.Errorf("receipt analyzer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ReceiptGuess{}, fmt.Errorf("receipt analyzer returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var guess ReceiptGuess
	if err := json.NewDecoder(resp.Body).Decode(&guess); err != nil {
		return ReceiptGuess{}, fmt.Errorf("failed to decode receipt analysis: %w", err)
	}
	return guess, nil
}
