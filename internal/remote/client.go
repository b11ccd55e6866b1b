package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukerupert/basket/internal/model"
)

// UserHeader carries the authenticated user id to the cloud service.
const UserHeader = "X-Basket-User"

const requestTimeout = 10 * time.Second

// Client talks to the basket cloud service over HTTP.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

var _ Store = (*Client)(nil)

func (c *Client) do(ctx context.Context, method, path, userID string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set(UserHeader, userID)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	remoteErr := &Error{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, remoteErr); err != nil || remoteErr.Message == "" {
		remoteErr.Message = strings.TrimSpace(string(data))
		if remoteErr.Message == "" {
			remoteErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	if remoteErr.Code == "" {
		remoteErr.Code = CodeForStatus(resp.StatusCode)
	}
	return remoteErr
}

func (c *Client) CreateList(ctx context.Context, list model.ShoppingList, userID string) (string, error) {
	var doc ListDoc
	if err := c.do(ctx, http.MethodPost, "/v1/lists", userID, ListDocFrom(list), &doc); err != nil {
		return "", err
	}
	return doc.ID, nil
}

func (c *Client) UpdateList(ctx context.Context, id string, patch ListPatch, userID string) (string, error) {
	var doc ListDoc
	if err := c.do(ctx, http.MethodPatch, "/v1/lists/"+url.PathEscape(id), userID, patch, &doc); err != nil {
		return "", err
	}
	return doc.ID, nil
}

func (c *Client) DeleteList(ctx context.Context, id string, userID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/lists/"+url.PathEscape(id), userID, nil, nil)
}

func (c *Client) CreateItem(ctx context.Context, item model.ShoppingItem, listID string, userID string) (string, error) {
	var doc ItemDoc
	path := "/v1/lists/" + url.PathEscape(listID) + "/items"
	if err := c.do(ctx, http.MethodPost, path, userID, ItemDocFrom(item), &doc); err != nil {
		return "", err
	}
	return doc.ID, nil
}

func (c *Client) UpdateItem(ctx context.Context, id string, patch ItemPatch, userID string) error {
	return c.do(ctx, http.MethodPatch, "/v1/items/"+url.PathEscape(id), userID, patch, nil)
}

func (c *Client) DeleteItem(ctx context.Context, id string, userID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/items/"+url.PathEscape(id), userID, nil, nil)
}

func (c *Client) ListAll(ctx context.Context, userID string) ([]model.ShoppingList, error) {
	var docs []ListDoc
	if err := c.do(ctx, http.MethodGet, "/v1/lists", userID, nil, &docs); err != nil {
		return nil, err
	}
	lists := make([]model.ShoppingList, 0, len(docs))
	for _, d := range docs {
		lists = append(lists, d.Model())
	}
	return lists, nil
}
