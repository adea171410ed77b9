package client

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// LedgerClient talks to the ledger authority.
type LedgerClient struct {
	baseURL string
	client  *http.Client
}

func NewLedgerClient(baseURL string) *LedgerClient {
	return &LedgerClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// JournalEntryInput 一条待登账分录
type JournalEntryInput struct {
	AccountCode string `json:"accountCode"`
	AccountName string `json:"accountName"`
	Side        string `json:"side"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
}

type RegisterJournalRequest struct {
	ReferenceType string              `json:"referenceType"`
	ReferenceID   string              `json:"referenceId"`
	Entries       []JournalEntryInput `json:"entries"`
}

type RegisterJournalResponse struct {
	JournalIDs []int64 `json:"journalIds"`
}

type DeleteJournalRequest struct {
	ReferenceType string `json:"referenceType"`
	ReferenceID   string `json:"referenceId"`
}

type DeleteJournalResponse struct {
	Deleted int64 `json:"deleted"`
}

// RegisterJournal 登记整批分录。账务服务整批校验整批落库。
func (c *LedgerClient) RegisterJournal(ctx context.Context, referenceType, referenceID string, entries []JournalEntryInput) (*RegisterJournalResponse, error) {
	req := &RegisterJournalRequest{
		ReferenceType: referenceType,
		ReferenceID:   referenceID,
		Entries:       entries,
	}
	var resp RegisterJournalResponse
	if err := postJSON(ctx, c.client, c.baseURL+"/internal/journal", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteJournal 删除单据的全部分录。幂等，单据不存在返回 0。
func (c *LedgerClient) DeleteJournal(ctx context.Context, referenceType, referenceID string) (*DeleteJournalResponse, error) {
	req := &DeleteJournalRequest{
		ReferenceType: referenceType,
		ReferenceID:   referenceID,
	}
	var resp DeleteJournalResponse
	if err := postJSON(ctx, c.client, c.baseURL+"/internal/journal/delete", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJournal 查询单据分录
func (c *LedgerClient) GetJournal(ctx context.Context, referenceType, referenceID string) ([]JournalEntryInput, error) {
	url := fmt.Sprintf("%s/v1/journal?referenceType=%s&referenceId=%s", c.baseURL, referenceType, referenceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	var entries []JournalEntryInput
	if err := doJSON(ctx, c.client, req, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
