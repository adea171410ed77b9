package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	commonerrors "github.com/retailcore/salesaga/pkg/errors"
)

func TestInventoryClient_GetProduct(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/products" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("productId") != "7" {
			t.Fatalf("unexpected productId: %s", r.URL.Query().Get("productId"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&ProductInfo{
			ProductID:     7,
			SKU:           "WIDGET-7",
			Name:          "Widget",
			Price:         "10.00",
			StockQuantity: 5,
			Status:        1,
		})
	}))
	defer server.Close()

	c := NewInventoryClient(server.URL)
	product, err := c.GetProduct(context.Background(), 7)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Price != "10.00" || product.StockQuantity != 5 {
		t.Fatalf("unexpected product: %+v", product)
	}
}

func TestInventoryClient_CheckAvailability(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/availability" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("productId") != "7" || r.URL.Query().Get("quantity") != "3" {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&AvailabilityInfo{
			ProductID:     7,
			Available:     true,
			StockQuantity: 5,
			Requested:     3,
		})
	}))
	defer server.Close()

	c := NewInventoryClient(server.URL)
	avail, err := c.CheckAvailability(context.Background(), 7, 3)
	if err != nil {
		t.Fatalf("check availability: %v", err)
	}
	if !avail.Available || avail.StockQuantity != 5 {
		t.Fatalf("unexpected availability: %+v", avail)
	}
}

func TestInventoryClient_Reserve(t *testing.T) {
	var got ReserveRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/reserve" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&ProductInfo{ProductID: got.ProductID, StockQuantity: 2})
	}))
	defer server.Close()

	c := NewInventoryClient(server.URL)
	product, err := c.Reserve(context.Background(), 7, 3)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got.ProductID != 7 || got.Quantity != 3 {
		t.Fatalf("unexpected request payload: %+v", got)
	}
	if product.StockQuantity != 2 {
		t.Fatalf("expected remaining 2, got %d", product.StockQuantity)
	}
}

func TestInventoryClient_ReserveConflictPassesThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(commonerrors.New(commonerrors.CodeInsufficientStock, "insufficient stock for product 7"))
	}))
	defer server.Close()

	c := NewInventoryClient(server.URL)
	_, err := c.Reserve(context.Background(), 7, 9)
	if !commonerrors.IsCode(err, commonerrors.CodeInsufficientStock) {
		t.Fatalf("expected INSUFFICIENT_STOCK passed through, got %v", err)
	}
}

func TestInventoryClient_ServerErrorMapsToRemoteUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewInventoryClient(server.URL)
	_, err := c.Reserve(context.Background(), 7, 1)
	if !commonerrors.IsCode(err, commonerrors.CodeRemoteUnavailable) {
		t.Fatalf("expected REMOTE_UNAVAILABLE, got %v", err)
	}
}

func TestInventoryClient_TransportErrorMapsToRemoteUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // connection refused from here on

	c := NewInventoryClient(server.URL)
	_, err := c.GetProduct(context.Background(), 7)
	if !commonerrors.IsCode(err, commonerrors.CodeRemoteUnavailable) {
		t.Fatalf("expected REMOTE_UNAVAILABLE, got %v", err)
	}
	if e := commonerrors.AsError(err); !e.Retryable {
		t.Fatal("transport failure should be retryable")
	}
}
