package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/resend/resend-go/v2"
	"github.com/tomasrv/tienda-backend/internal/domain/models"
	"github.com/tomasrv/tienda-backend/internal/gateway/webpay"
)

// Mailer sends a single email. Implemented by the Resend client; faked in
// tests.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// OrderNotifier fires the post-payment emails. Implementations must be
// best-effort: no error return, failures stay inside.
type OrderNotifier interface {
	OrderPaid(ctx context.Context, order *models.Order, result *webpay.CommitResult)
}

type notifyService struct {
	log        *slog.Logger
	mailer     Mailer
	ownerEmail string
}

func NewNotifyService(log *slog.Logger, mailer Mailer, ownerEmail string) OrderNotifier {
	return &notifyService{
		log:        log,
		mailer:     mailer,
		ownerEmail: ownerEmail,
	}
}

// OrderPaid sends the customer confirmation and the owner alert. The two
// sends are independent: a failure in one is logged and the other still
// goes out.
func (s *notifyService) OrderPaid(ctx context.Context, order *models.Order, result *webpay.CommitResult) {
	const op = "service.NotifyService.OrderPaid"
	logger := s.log.With(slog.String("op", op), slog.String("orderID", order.OrderID))

	if order.CustomerEmail != "" {
		subject := fmt.Sprintf("Confirmación de compra %s", order.OrderID)
		if err := s.mailer.Send(ctx, order.CustomerEmail, subject, confirmationHTML(order, result)); err != nil {
			logger.Error("failed to send confirmation email", slog.Any("error", err))
		}
	}

	if s.ownerEmail != "" {
		subject := fmt.Sprintf("Nuevo pedido %s", order.OrderID)
		if err := s.mailer.Send(ctx, s.ownerEmail, subject, alertHTML(order)); err != nil {
			logger.Error("failed to send owner alert", slog.Any("error", err))
		}
	}
}

func confirmationHTML(order *models.Order, result *webpay.CommitResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>Gracias por tu compra, %s</h1>", order.CustomerName)
	fmt.Fprintf(&b, "<p>Pedido <strong>%s</strong> pagado correctamente.</p>", order.OrderID)
	b.WriteString("<ul>")
	for _, item := range order.Items {
		fmt.Fprintf(&b, "<li>%s x%d — $%d</li>", item.Name, item.Quantity, item.Price)
	}
	b.WriteString("</ul>")
	fmt.Fprintf(&b, "<p>Total: $%d</p>", order.TotalAmount)
	if result != nil && result.AuthorizationCode != "" {
		fmt.Fprintf(&b, "<p>Código de autorización: %s</p>", result.AuthorizationCode)
	}
	return b.String()
}

func alertHTML(order *models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>Nuevo pedido %s</h1>", order.OrderID)
	fmt.Fprintf(&b, "<p>Cliente: %s (%s)</p>", order.CustomerName, order.CustomerEmail)
	fmt.Fprintf(&b, "<p>Total: $%d, %d productos</p>", order.TotalAmount, len(order.Items))
	return b.String()
}

type resendMailer struct {
	client *resend.Client
	from   string
}

// NewResendMailer builds the production Mailer on top of the Resend API.
func NewResendMailer(apiKey, from string) Mailer {
	return &resendMailer{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

func (m *resendMailer) Send(ctx context.Context, to, subject, html string) error {
	_, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	return err
}
