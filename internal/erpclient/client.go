// Package erpclient is the REST/JSON client for the ERP API that owns
// orders, damage points, checklist taxonomy and checklist answers.
package erpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/autoerp-inspection/backend/internal/apperror"
	"github.com/autoerp-inspection/backend/internal/config"
	"github.com/autoerp-inspection/backend/internal/models"
)

// Client talks to the ERP API.
type Client struct {
	baseURL    string
	logger     *zap.Logger
	httpClient *http.Client
}

// New creates a new ERP API client.
func New(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		logger:  logger,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}
}

// DamageTypes fetches the damage-type taxonomy.
func (c *Client) DamageTypes(ctx context.Context) ([]models.DamageType, error) {
	var out []damageTypeDTO
	if err := c.do(ctx, "fetch damage types", http.MethodGet, "/orders/bodywork-detail-types/", nil, &out); err != nil {
		return nil, err
	}
	types := make([]models.DamageType, 0, len(out))
	for _, d := range out {
		types = append(types, d.model())
	}
	return types, nil
}

// InventoryTypes fetches every inventory type ordered by position.
func (c *Client) InventoryTypes(ctx context.Context) ([]models.InventoryType, error) {
	var out []inventoryTypeDTO
	if err := c.do(ctx, "fetch inventory types", http.MethodGet, "/orders/inventory-types/", nil, &out); err != nil {
		return nil, err
	}
	types := make([]models.InventoryType, 0, len(out))
	for _, d := range out {
		types = append(types, d.model())
	}
	sort.SliceStable(types, func(i, j int) bool { return types[i].Position < types[j].Position })
	return types, nil
}

// ChecklistItems fetches the items of an inventory type ordered by position.
func (c *Client) ChecklistItems(ctx context.Context, inventoryTypeID int64) ([]models.ChecklistItem, error) {
	var out checklistItemsDTO
	path := "/orders/inventory-items/" + strconv.FormatInt(inventoryTypeID, 10)
	if err := c.do(ctx, "fetch checklist items", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	items := make([]models.ChecklistItem, 0, len(out.Items))
	for _, d := range out.Items {
		items = append(items, d.model())
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	return items, nil
}

// DamagePoints fetches the persisted damage points of an order.
func (c *Client) DamagePoints(ctx context.Context, orderID int64) ([]models.DamagePoint, error) {
	var out []bodyworkDetailDTO
	path := "/orders/bodywork-details/" + strconv.FormatInt(orderID, 10)
	if err := c.do(ctx, "fetch damage points", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	points := make([]models.DamagePoint, 0, len(out))
	for _, d := range out {
		points = append(points, d.model())
	}
	return points, nil
}

// CreateDamagePoints creates points in one batch. The response preserves
// request order.
func (c *Client) CreateDamagePoints(ctx context.Context, orderID int64, view models.ViewKey, points []models.DamagePoint) ([]models.DamagePoint, error) {
	payload := make([]bodyworkDetailPayload, 0, len(points))
	for _, p := range points {
		payload = append(payload, newDetailPayload(orderID, view, p))
	}

	var out []bodyworkDetailDTO
	if err := c.do(ctx, "create damage points", http.MethodPost, "/orders/bodywork-details/", payload, &out); err != nil {
		return nil, err
	}
	created := make([]models.DamagePoint, 0, len(out))
	for _, d := range out {
		created = append(created, d.model())
	}
	return created, nil
}

// UpdateDamagePoint patches one persisted point.
func (c *Client) UpdateDamagePoint(ctx context.Context, orderID int64, point models.DamagePoint) error {
	if point.ServerID == nil {
		return apperror.Invalid("detail_id", "point has not been persisted")
	}
	path := fmt.Sprintf("/orders/bodywork-details/%d/", *point.ServerID)
	return c.do(ctx, "update damage point", http.MethodPatch, path, newDetailPayload(orderID, point.View, point), nil)
}

// DeleteDamagePoint deletes one persisted point.
func (c *Client) DeleteDamagePoint(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/orders/bodywork-details/%d", id)
	return c.do(ctx, "delete damage point", http.MethodDelete, path, nil, nil)
}

// ItemAnswers fetches saved checklist answers keyed by item id. An order
// without answers yields an empty map.
func (c *Client) ItemAnswers(ctx context.Context, orderID, inventoryTypeID int64) (map[int64]models.ItemAnswer, error) {
	var out []inventoryDataDTO
	path := fmt.Sprintf("/orders/inventory-data/%d/%d", orderID, inventoryTypeID)
	err := c.do(ctx, "fetch checklist answers", http.MethodGet, path, nil, &out)
	if err != nil {
		var ne *apperror.NetworkError
		if errors.As(err, &ne) && ne.Status == http.StatusNotFound {
			return map[int64]models.ItemAnswer{}, nil
		}
		return nil, err
	}
	answers := make(map[int64]models.ItemAnswer, len(out))
	for _, d := range out {
		answers[d.ItemID] = d.Data
	}
	return answers, nil
}

// UpsertItemAnswers writes a batch of answers keyed by item id.
func (c *Client) UpsertItemAnswers(ctx context.Context, orderID int64, answers map[int64]models.ItemAnswer) error {
	ids := make([]int64, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	payload := make([]inventoryDataPayload, 0, len(ids))
	for _, id := range ids {
		payload = append(payload, inventoryDataPayload{OrderID: orderID, ItemID: id, Data: answers[id]})
	}
	return c.do(ctx, "save checklist answers", http.MethodPost, "/orders/inventory-data/", payload, nil)
}

// do executes one request. Transport failures and non-2xx statuses become
// *apperror.NetworkError; the "detail" of an error body is kept.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	target, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return &apperror.NetworkError{Op: op, Err: fmt.Errorf("invalid API URL: %w", err)}
	}
	// JoinPath drops a trailing slash the API may require.
	if strings.HasSuffix(path, "/") && !strings.HasSuffix(target, "/") {
		target += "/"
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &apperror.NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("Calling ERP API",
		zap.String("method", method),
		zap.String("target", target),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("ERP API unreachable", zap.String("op", op), zap.Error(err))
		return &apperror.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apperror.NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ne := &apperror.NetworkError{Op: op, Status: resp.StatusCode, Detail: errorDetail(respBody)}
		if resp.StatusCode != http.StatusNotFound {
			c.logger.Warn("ERP API rejected request",
				zap.String("op", op),
				zap.Int("status", resp.StatusCode),
				zap.String("detail", ne.Detail),
			)
		}
		return ne
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &apperror.NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func errorDetail(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Detail != "" {
			return eb.Detail
		}
		if eb.Message != "" {
			return eb.Message
		}
	}
	return ""
}
