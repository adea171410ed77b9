// Package client 远端库存与账务服务的 HTTP 客户端
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	commonerrors "github.com/retailcore/salesaga/pkg/errors"
	"github.com/retailcore/salesaga/pkg/tracing"
)

// InventoryClient talks to the inventory authority. Stock checks and
// mutations happen remotely; this client never caches quantities.
type InventoryClient struct {
	baseURL string
	client  *http.Client
}

func NewInventoryClient(baseURL string) *InventoryClient {
	return &InventoryClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// ProductInfo 库存服务返回的商品视图
type ProductInfo struct {
	ProductID     int64  `json:"productId"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	Price         string `json:"price"`
	StockQuantity int64  `json:"stockQuantity"`
	Status        int    `json:"status"`
}

// AvailabilityInfo 库存可用性快照
type AvailabilityInfo struct {
	ProductID     int64 `json:"productId"`
	Available     bool  `json:"available"`
	StockQuantity int64 `json:"stockQuantity"`
	Requested     int64 `json:"requested"`
}

type ReserveRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int64 `json:"quantity"`
}

type ReleaseRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int64 `json:"quantity"`
}

// GetProduct 查询商品（含当前价格快照）
func (c *InventoryClient) GetProduct(ctx context.Context, productID int64) (*ProductInfo, error) {
	url := fmt.Sprintf("%s/v1/products?productId=%d", c.baseURL, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, commonerrors.Wrap(commonerrors.CodeInternal, "create request", err)
	}

	var product ProductInfo
	if err := doJSON(ctx, c.client, req, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// CheckAvailability 查询库存是否足够，只读。结果是瞬时快照，
// 真正的扣减保证在 Reserve 上。
func (c *InventoryClient) CheckAvailability(ctx context.Context, productID, quantity int64) (*AvailabilityInfo, error) {
	url := fmt.Sprintf("%s/v1/availability?productId=%d&quantity=%d", c.baseURL, productID, quantity)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, commonerrors.Wrap(commonerrors.CodeInternal, "create request", err)
	}

	var avail AvailabilityInfo
	if err := doJSON(ctx, c.client, req, &avail); err != nil {
		return nil, err
	}
	return &avail, nil
}

// Reserve 请求库存服务原子扣减库存
func (c *InventoryClient) Reserve(ctx context.Context, productID, quantity int64) (*ProductInfo, error) {
	var product ProductInfo
	if err := postJSON(ctx, c.client, c.baseURL+"/internal/reserve",
		&ReserveRequest{ProductID: productID, Quantity: quantity}, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// Release 归还已扣减的库存
func (c *InventoryClient) Release(ctx context.Context, productID, quantity int64) error {
	var product ProductInfo
	return postJSON(ctx, c.client, c.baseURL+"/internal/release",
		&ReleaseRequest{ProductID: productID, Quantity: quantity}, &product)
}

func postJSON(ctx context.Context, client *http.Client, url string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return commonerrors.Wrap(commonerrors.CodeInternal, "marshal body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return commonerrors.Wrap(commonerrors.CodeInternal, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return doJSON(ctx, client, req, out)
}

// doJSON 执行请求并解码响应。网络错误和 5xx 映射为
// REMOTE_UNAVAILABLE；携带错误码的业务拒绝原样透传。
func doJSON(ctx context.Context, client *http.Client, req *http.Request, out interface{}) error {
	tracing.InjectHTTP(ctx, req)

	resp, err := client.Do(req)
	if err != nil {
		return commonerrors.Wrap(commonerrors.CodeRemoteUnavailable, "remote authority unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return commonerrors.Wrap(commonerrors.CodeRemoteUnavailable, "read response", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return commonerrors.Newf(commonerrors.CodeRemoteUnavailable, "remote returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeRemoteError(respBody, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return commonerrors.Wrap(commonerrors.CodeRemoteUnavailable, "decode response", err)
	}
	return nil
}

func decodeRemoteError(body []byte, status int) error {
	var remote commonerrors.Error
	if err := json.Unmarshal(body, &remote); err == nil && remote.Code != "" {
		return &remote
	}
	return commonerrors.Newf(commonerrors.CodeUnknown, "remote rejected request with %d", status)
}
