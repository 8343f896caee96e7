package models

import "time"

// Customer is the payer data sent to a payment gateway.
type Customer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Document string `json:"document,omitempty"`
}

// ChargeRequest is a single charge to be issued by a gateway.
type ChargeRequest struct {
	Customer    Customer      `json:"customer"`
	Amount      float64       `json:"amount"`
	DueDate     time.Time     `json:"due_date"`
	Description string        `json:"description"`
	Method      PaymentMethod `json:"method"`
	Reference   string        `json:"reference,omitempty"`
}

// ChargeRef is the gateway-owned result of a charge request.
type ChargeRef struct {
	ID         string    `json:"id"`
	Gateway    string    `json:"gateway"`
	Status     string    `json:"status"`
	InvoiceURL string    `json:"invoice_url,omitempty"`
	Amount     float64   `json:"amount"`
	DueDate    time.Time `json:"due_date"`
}
