// internal/clients/mail_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"bookstore/internal/order"
)

// Notification types posted to the mail service.
const (
	NotificationOrderConfirmed = "order_confirmed"
	NotificationStatusChanged  = "order_status_changed"
	NotificationOrderCancelled = "order_cancelled"
)

// Notification is the body of POST {baseURL}/notifications.
type Notification struct {
	Type      string         `json:"type"`
	Customer  order.Customer `json:"customer"`
	Order     *order.Order   `json:"order"`
	OldStatus order.Status   `json:"old_status,omitempty"`
	NewStatus order.Status   `json:"new_status,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	SentAt    time.Time      `json:"sent_at"`
}

// MailClient delivers order notifications to the mail service. It makes a
// single attempt per event.
type MailClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ order.Notifier = (*MailClient)(nil)

func NewMailClient(baseURL string, timeout time.Duration) *MailClient {
	return &MailClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *MailClient) OrderConfirmed(ctx context.Context, o *order.Order, customer order.Customer) error {
	return c.post(ctx, Notification{Type: NotificationOrderConfirmed, Customer: customer, Order: o})
}

func (c *MailClient) StatusChanged(ctx context.Context, o *order.Order, customer order.Customer, from, to order.Status) error {
	return c.post(ctx, Notification{Type: NotificationStatusChanged, Customer: customer, Order: o, OldStatus: from, NewStatus: to})
}

func (c *MailClient) Cancelled(ctx context.Context, o *order.Order, customer order.Customer, reason string) error {
	return c.post(ctx, Notification{Type: NotificationOrderCancelled, Customer: customer, Order: o, Reason: reason})
}

func (c *MailClient) post(ctx context.Context, n Notification) error {
	n.SentAt = time.Now().UTC()
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/notifications", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
