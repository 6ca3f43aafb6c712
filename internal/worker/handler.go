package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/medstore/internal/domain"
	"github.com/joao-fontenele/medstore/internal/messaging"
)

type mail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NotificationHandler turns order events into mails sent through the email
// service.
type NotificationHandler struct {
	emailServiceURL string
	pharmacyInbox   string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL, pharmacyInbox string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: strings.TrimRight(emailServiceURL, "/"),
		pharmacyInbox:   pharmacyInbox,
		httpClient:      client,
		logger:          logger,
	}
}

func (h *NotificationHandler) Handle(ctx context.Context, msg messaging.Message) error {
	var event domain.OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("unmarshal order event: %w: %w", messaging.ErrPermanent, err)
	}

	h.logger.Info("processing order event", "order_id", event.OrderID, "event_type", event.Type)

	var mails []mail
	switch event.Type {
	case domain.EventOrderCreated:
		mails = h.createdMails(event)
	case domain.EventOrderStatusChanged:
		mails = h.statusMails(event)
	default:
		h.logger.Warn("ignoring unknown event type", "event_type", event.Type, "order_id", event.OrderID)
		return nil
	}

	for _, m := range mails {
		if m.To == "" {
			h.logger.Warn("no recipient for order mail", "order_id", event.OrderID, "subject", m.Subject)
			continue
		}
		if err := h.sendEmail(ctx, m); err != nil {
			h.logger.Error("failed to send email", "error", err, "order_id", event.OrderID)
			return fmt.Errorf("send email for order %s: %w", event.OrderID, err)
		}
	}

	h.logger.Info("order event processed", "order_id", event.OrderID, "mails", len(mails))
	return nil
}

func (h *NotificationHandler) createdMails(event domain.OrderEvent) []mail {
	lines := make([]string, 0, len(event.Items))
	for _, item := range event.Items {
		name := item.ProductName
		if name == "" {
			name = item.ProductID
		}
		lines = append(lines, fmt.Sprintf("- %d x %s @ %s", item.Quantity, name, item.PriceAtTime.StringFixed(2)))
	}

	body := fmt.Sprintf("We received your order %s.\n\n%s\n\nTotal: %s",
		event.OrderID, strings.Join(lines, "\n"), event.TotalAmount.StringFixed(2))
	if event.Status == domain.OrderStatusPrescription {
		body += "\n\nA pharmacist will review your prescription before the order is processed."
	}

	mails := []mail{{
		To:      event.CustomerEmail,
		Subject: "Order received: " + event.OrderID,
		Body:    body,
	}}

	if event.Status == domain.OrderStatusPrescription && h.pharmacyInbox != "" {
		mails = append(mails, mail{
			To:      h.pharmacyInbox,
			Subject: "Prescription review needed: " + event.OrderID,
			Body:    fmt.Sprintf("Order %s from user %s is waiting for prescription review.", event.OrderID, event.UserID),
		})
	}

	return mails
}

func (h *NotificationHandler) statusMails(event domain.OrderEvent) []mail {
	var body string
	switch event.Status {
	case domain.OrderStatusCancelled:
		body = fmt.Sprintf("Your order %s has been cancelled.", event.OrderID)
	case domain.OrderStatusDone:
		body = fmt.Sprintf("Your order %s is complete. Thank you for shopping with us.", event.OrderID)
	default:
		body = fmt.Sprintf("Your order %s is now %s.", event.OrderID, statusLabel(event.Status))
	}

	return []mail{{
		To:      event.CustomerEmail,
		Subject: "Order update: " + event.OrderID,
		Body:    body,
	}}
}

func statusLabel(s domain.OrderStatus) string {
	return strings.ToLower(strings.ReplaceAll(string(s), "_", " "))
}

func (h *NotificationHandler) sendEmail(ctx context.Context, m mail) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("email service rejected mail with status %d: %w", resp.StatusCode, messaging.ErrPermanent)
	default:
		return errors.New("email service returned status " + http.StatusText(resp.StatusCode))
	}
}
