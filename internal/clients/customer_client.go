// internal/clients/customer_client.go
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"bookstore/internal/order"

	"github.com/google/uuid"
)

// CustomerClient looks up notification details in the customer service.
type CustomerClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ order.CustomerDirectory = (*CustomerClient)(nil)

func NewCustomerClient(baseURL string, timeout time.Duration) *CustomerClient {
	return &CustomerClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Customer implements order.CustomerDirectory.
func (c *CustomerClient) Customer(ctx context.Context, userID uuid.UUID) (order.Customer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/customers/%s", c.baseURL, userID), nil)
	if err != nil {
		return order.Customer{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return order.Customer{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return order.Customer{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var customer order.Customer
	if err := json.NewDecoder(resp.Body).Decode(&customer); err != nil {
		return order.Customer{}, fmt.Errorf("failed to decode customer: %w", err)
	}
	customer.ID = userID
	return customer, nil
}
