// Package appstore verifies App Store receipts against Apple's verifyReceipt
// endpoints.
package appstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goaltrack-api/internal/config"
)

const (
	StatusValid = 0
	// StatusSandboxReceipt is returned by production for a receipt issued in
	// the sandbox (TestFlight, App Review).
	StatusSandboxReceipt = 21007
)

// Response is the subset of the verifyReceipt body the reconciler reads.
type Response struct {
	Status            int           `json:"status"`
	Environment       string        `json:"environment"`
	Receipt           Receipt       `json:"receipt"`
	LatestReceiptInfo []Transaction `json:"latest_receipt_info"`
	Raw               []byte        `json:"-"`
}

type Receipt struct {
	BundleID string        `json:"bundle_id"`
	InApp    []Transaction `json:"in_app"`
}

// Transaction is one purchase inside a receipt. Apple encodes timestamps as
// millisecond strings.
type Transaction struct {
	ProductID             string `json:"product_id"`
	TransactionID         string `json:"transaction_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	PurchaseDateMS        string `json:"purchase_date_ms"`
	ExpiresDateMS         string `json:"expires_date_ms"`
}

func (t Transaction) PurchaseTime() (time.Time, bool) { return msTime(t.PurchaseDateMS) }

// ExpiryTime is only set for auto-renewable subscriptions.
func (t Transaction) ExpiryTime() (time.Time, bool) { return msTime(t.ExpiresDateMS) }

func msTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// Find returns the entry for transactionID, checking latest_receipt_info
// before in_app. Renewals share original_transaction_id, which also matches.
func (r *Response) Find(transactionID string) (Transaction, bool) {
	for _, list := range [][]Transaction{r.LatestReceiptInfo, r.Receipt.InApp} {
		for _, t := range list {
			if t.TransactionID == transactionID || t.OriginalTransactionID == transactionID {
				return t, true
			}
		}
	}
	return Transaction{}, false
}

// Client posts receipts to production first and falls back to sandbox.
type Client struct {
	http          *http.Client
	productionURL string
	sandboxURL    string
	sharedSecret  string
}

func NewClient(cfg config.Apple, timeout time.Duration) *Client {
	return &Client{
		http:          &http.Client{Timeout: timeout},
		productionURL: cfg.ProductionURL,
		sandboxURL:    cfg.SandboxURL,
		sharedSecret:  cfg.SharedSecret,
	}
}

// VerifyReceipt submits receiptData to production and, when Apple reports a
// sandbox receipt, resubmits it to the sandbox endpoint. A non-nil Response
// is returned for any status; only transport and decoding problems are errors.
func (c *Client) VerifyReceipt(ctx context.Context, receiptData string) (*Response, error) {
	resp, err := c.post(ctx, c.productionURL, receiptData)
	if err != nil {
		return nil, err
	}
	if resp.Status == StatusSandboxReceipt {
		return c.post(ctx, c.sandboxURL, receiptData)
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, url, receiptData string) (*Response, error) {
	body, err := json.Marshal(map[string]any{
		"receipt-data":             receiptData,
		"password":                 c.sharedSecret,
		"exclude-old-transactions": true,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify receipt: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify receipt: unexpected http status %d", res.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(res.Body); err != nil {
		return nil, fmt.Errorf("read verify receipt body: %w", err)
	}
	var out Response
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("decode verify receipt body: %w", err)
	}
	out.Raw = buf.Bytes()
	return &out, nil
}
