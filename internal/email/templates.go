// Package email provides email templates.
package email

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/smartapp/orderpay/internal/models"
)

const TemplateOrderConfirmation = "order_confirmation"

// OrderInfo contains all the information needed for order email templates
type OrderInfo struct {
	OrderNumber    string
	CustomerName   string
	CustomerEmail  string
	OrderDate      time.Time
	Items          []OrderItem
	Subtotal       string
	DeliveryFee    string
	Discount       string
	WalletUsed     string
	Total          string
	AmountDue      string
	PaymentMethod  string
	PaymentStatus  string
	ReferenceCode  string
	VirtualAccount string
	TrackURL       string
}

// OrderItem represents a single item in an order
type OrderItem struct {
	Name         string
	Portion      string
	Quantity     int
	TotalPrice   string
	Instructions string
}

// FormatMoney renders minor units as a decimal amount with its currency code.
func FormatMoney(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	if currency == "" {
		currency = "EGP"
	}
	return fmt.Sprintf("%s %s%d.%02d", strings.ToUpper(currency), sign, cents/100, cents%100)
}

var paymentMethodLabels = map[models.PaymentMethod]string{
	models.MethodCOD:          "Cash on delivery",
	models.MethodCard:         "Card",
	models.MethodInstapay:     "InstaPay transfer",
	models.MethodFawry:        "Fawry",
	models.MethodMobileWallet: "Mobile wallet",
	models.MethodWallet:       "Wallet balance",
}

// BuildOrderInfo flattens an order into template data. trackBaseURL may be empty.
func BuildOrderInfo(order *models.Order, customerName, trackBaseURL string) *OrderInfo {
	info := &OrderInfo{
		OrderNumber:    order.OrderNumber,
		CustomerName:   customerName,
		CustomerEmail:  order.UserEmail,
		OrderDate:      order.CreatedAt,
		Subtotal:       FormatMoney(order.SubtotalCents, order.Currency),
		DeliveryFee:    FormatMoney(order.DeliveryFeeCents, order.Currency),
		Total:          FormatMoney(order.TotalCents, order.Currency),
		AmountDue:      FormatMoney(order.AmountDueCents, order.Currency),
		PaymentMethod:  paymentMethodLabels[order.PaymentMethod],
		PaymentStatus:  strings.ReplaceAll(string(order.PaymentStatus), "_", " "),
		ReferenceCode:  order.ReferenceCode,
		VirtualAccount: order.VirtualAccount,
	}
	if info.CustomerName == "" {
		info.CustomerName = "there"
	}
	if order.DiscountCents > 0 {
		info.Discount = FormatMoney(order.DiscountCents, order.Currency)
	}
	if order.WalletUsedCents > 0 {
		info.WalletUsed = FormatMoney(order.WalletUsedCents, order.Currency)
	}
	if trackBaseURL != "" {
		info.TrackURL = strings.TrimRight(trackBaseURL, "/") + "/" + order.ID.String()
	}
	for _, item := range order.Items {
		info.Items = append(info.Items, OrderItem{
			Name:         item.Name,
			Portion:      item.PortionName,
			Quantity:     item.Quantity,
			TotalPrice:   FormatMoney(item.TotalPriceCents, order.Currency),
			Instructions: item.SpecialInstructions,
		})
	}
	return info
}

// Renderer provides methods to render email templates
type Renderer struct {
	templates *template.Template
}

// NewRenderer creates a new email template renderer with built-in templates
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.Format("January 2, 2006")
		},
	}

	tmpl := template.New("email").Funcs(funcMap)
	if _, err := tmpl.New(TemplateOrderConfirmation + "_html").Parse(orderConfirmationHTML); err != nil {
		return nil, fmt.Errorf("failed to parse HTML template %s: %w", TemplateOrderConfirmation, err)
	}
	if _, err := tmpl.New(TemplateOrderConfirmation + "_text").Parse(orderConfirmationText); err != nil {
		return nil, fmt.Errorf("failed to parse text template %s: %w", TemplateOrderConfirmation, err)
	}

	return &Renderer{
		templates: tmpl,
	}, nil
}

// Render renders an email template with the given data
func (r *Renderer) Render(_ context.Context, templateName string, data *OrderInfo) (*Email, error) {
	var htmlBuf, textBuf bytes.Buffer

	if err := r.templates.ExecuteTemplate(&htmlBuf, templateName+"_html", data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}
	if err := r.templates.ExecuteTemplate(&textBuf, templateName+"_text", data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}

	subject := ""
	switch templateName {
	case TemplateOrderConfirmation:
		subject = fmt.Sprintf("Order Confirmed - %s", data.OrderNumber)
	}

	return &Email{
		To:      data.CustomerEmail,
		Subject: subject,
		Text:    textBuf.String(),
		HTML:    htmlBuf.String(),
	}, nil
}

// SendOrderConfirmation renders and sends the order confirmation email
func SendOrderConfirmation(ctx context.Context, p Provider, orderInfo *OrderInfo) (*SendResult, error) {
	if p == nil {
		return nil, ErrNotConfigured
	}

	renderer, err := NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	email, err := renderer.Render(ctx, TemplateOrderConfirmation, orderInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	return p.SendEmail(ctx, email)
}

const orderConfirmationText = `Hi {{.CustomerName}},

Thank you for your order! We received it on {{formatDate .OrderDate}}.

Order: {{.OrderNumber}}
{{range .Items}}
- {{.Quantity}} x {{.Name}}{{if .Portion}} ({{.Portion}}){{end}}: {{.TotalPrice}}{{if .Instructions}}
  Note: {{.Instructions}}{{end}}{{end}}

Subtotal: {{.Subtotal}}
Delivery: {{.DeliveryFee}}{{if .Discount}}
Discount: -{{.Discount}}{{end}}{{if .WalletUsed}}
Wallet: -{{.WalletUsed}}{{end}}
Total: {{.Total}}
Amount due: {{.AmountDue}}

Payment: {{.PaymentMethod}} ({{.PaymentStatus}}){{if .ReferenceCode}}
Transfer reference: {{.ReferenceCode}}{{end}}{{if .VirtualAccount}}
Transfer to account: {{.VirtualAccount}}{{end}}
{{if .TrackURL}}
Track your order: {{.TrackURL}}
{{end}}`

const orderConfirmationHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Order Confirmed - {{.OrderNumber}}</title>
</head>
<body style="font-family: Arial, sans-serif; color: #1f2933; max-width: 600px; margin: 0 auto;">
  <h1 style="font-size: 22px;">Thank you for your order, {{.CustomerName}}!</h1>
  <p>Order <strong>{{.OrderNumber}}</strong> was placed on {{formatDate .OrderDate}}.</p>
  <table style="width: 100%; border-collapse: collapse;">
    {{range .Items}}
    <tr>
      <td style="padding: 6px 0;">{{.Quantity}} &times; {{.Name}}{{if .Portion}} ({{.Portion}}){{end}}{{if .Instructions}}<br><small>{{.Instructions}}</small>{{end}}</td>
      <td style="padding: 6px 0; text-align: right;">{{.TotalPrice}}</td>
    </tr>
    {{end}}
    <tr><td>Subtotal</td><td style="text-align: right;">{{.Subtotal}}</td></tr>
    <tr><td>Delivery</td><td style="text-align: right;">{{.DeliveryFee}}</td></tr>
    {{if .Discount}}<tr><td>Discount</td><td style="text-align: right;">-{{.Discount}}</td></tr>{{end}}
    {{if .WalletUsed}}<tr><td>Wallet</td><td style="text-align: right;">-{{.WalletUsed}}</td></tr>{{end}}
    <tr><td><strong>Total</strong></td><td style="text-align: right;"><strong>{{.Total}}</strong></td></tr>
    <tr><td>Amount due</td><td style="text-align: right;">{{.AmountDue}}</td></tr>
  </table>
  <p>Payment: {{.PaymentMethod}} ({{.PaymentStatus}})</p>
  {{if .ReferenceCode}}<p>Transfer reference: <strong>{{.ReferenceCode}}</strong></p>{{end}}
  {{if .VirtualAccount}}<p>Transfer to account: <code>{{.VirtualAccount}}</code></p>{{end}}
  {{if .TrackURL}}<p><a href="{{.TrackURL}}">Track your order</a></p>{{end}}
</body>
</html>`
