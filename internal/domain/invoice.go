package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InvoiceStatus type for the monthly invoice lifecycle
type InvoiceStatus string

const (
	InvoiceUnpaid  InvoiceStatus = "UNPAID"
	InvoicePaid    InvoiceStatus = "PAID"
	InvoiceOverdue InvoiceStatus = "OVERDUE"
)

// Payable reports whether an invoice in this status may still be paid.
func (s InvoiceStatus) Payable() bool {
	return s == InvoiceUnpaid || s == InvoiceOverdue
}

// MonthlyInvoice is a frozen snapshot of one client's charges for one
// calendar month. At most one exists per (ClientID, Month).
type MonthlyInvoice struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ClientID     primitive.ObjectID `bson:"clientId" json:"clientId"`
	Month        time.Time          `bson:"month" json:"month"`     // first instant of the month
	DueDate      time.Time          `bson:"dueDate" json:"dueDate"` // last instant of the month
	TotalBalance decimal.Decimal    `bson:"totalBalance" json:"totalBalance"`
	PlanCosts    decimal.Decimal    `bson:"planCosts" json:"planCosts"`
	Penalties    decimal.Decimal    `bson:"penalties" json:"penalties"`
	// ExcludedCharges are charges in the month with an unbilled reason.
	ExcludedCharges decimal.Decimal `bson:"excludedCharges" json:"excludedCharges"`
	Status          InvoiceStatus   `bson:"status" json:"status"`
	PaidAt          *time.Time      `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	StatementKey    string          `bson:"statementKey,omitempty" json:"-"`
	CreatedAt       time.Time       `bson:"createdAt" json:"createdAt"`
}
