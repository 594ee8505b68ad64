package parse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"conti/internal/core"
)

// RemoteParser calls a hosted parsing endpoint that understands free-form
// expense text. The endpoint's failure taxonomy maps onto the package's
// sentinel errors so callers never branch on transport details.
type RemoteParser struct {
	endpoint string
	client   *http.Client
}

type remoteRequest struct {
	Text string `json:"text"`
}

type remoteResponse struct {
	Category    string `json:"category"`
	Vendor      string `json:"vendor"`
	Description string `json:"description"`
	Date        string `json:"date"` // YYYY-MM-DD
	Amount      string `json:"amount"`
	Error       string `json:"error,omitempty"`
}

func NewRemoteParser(endpoint string, timeout time.Duration) *RemoteParser {
	return &RemoteParser{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (p *RemoteParser) Parse(ctx context.Context, text string) (ParsedExpense, error) {
	body, err := json.Marshal(remoteRequest{Text: text})
	if err != nil {
		return ParsedExpense{}, fmt.Errorf("%w: marshal request: %v", ErrParse, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return ParsedExpense{}, fmt.Errorf("%w: build request: %v", ErrParse, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return ParsedExpense{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	defer resp.Body.Close()

	var parsed remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ParsedExpense{}, fmt.Errorf("%w: decode response: %v", ErrParse, err)
	}

	switch parsed.Error {
	case "":
	case "not_an_expense":
		return ParsedExpense{}, ErrNotAnExpense
	case "invalid_amount":
		return ParsedExpense{}, ErrInvalidAmount
	default:
		return ParsedExpense{}, fmt.Errorf("%w: %s", ErrParse, parsed.Error)
	}

	if resp.StatusCode != http.StatusOK {
		return ParsedExpense{}, fmt.Errorf("%w: unexpected status %d", ErrParse, resp.StatusCode)
	}

	cents, err := core.ParseDecimalToCents(parsed.Amount)
	if err != nil {
		return ParsedExpense{}, ErrInvalidAmount
	}

	date, err := time.Parse("2006-01-02", parsed.Date)
	if err != nil {
		return ParsedExpense{}, fmt.Errorf("%w: bad date %q", ErrParse, parsed.Date)
	}

	vendor := parsed.Vendor
	if vendor == "" {
		vendor = core.UnknownName
	}

	return ParsedExpense{
		Category:    parsed.Category,
		Vendor:      vendor,
		Description: parsed.Description,
		Date:        core.Date{Time: date},
		Amount:      core.Money{Cents: cents},
	}, nil
}
