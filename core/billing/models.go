package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/trezcool/elimu/core"
)

const (
	SubjectTypePaymentPlan = "payment_plan"
	SubjectTypeInvoice     = "invoice"
	SubjectTypePayment     = "payment"
)

// Plan frequencies
const (
	FrequencyMonthly   = "monthly"
	FrequencyQuarterly = "quarterly"
	FrequencyAnnual    = "annual"
	FrequencyOneTime   = "one_time"
)

// Invoice statuses
const (
	InvoiceDraft     = "draft"
	InvoiceIssued    = "issued"
	InvoicePaid      = "paid"
	InvoiceCancelled = "cancelled"
)

// Payment statuses
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
	PaymentOverdue   = "overdue"
)

// Payment methods
const (
	MethodCash         = "cash"
	MethodBankTransfer = "bank_transfer"
	MethodMobileMoney  = "mobile_money"
	MethodCard         = "card"
)

var (
	Frequencies     = []string{FrequencyMonthly, FrequencyQuarterly, FrequencyAnnual, FrequencyOneTime}
	InvoiceStatuses = []string{InvoiceDraft, InvoiceIssued, InvoicePaid, InvoiceCancelled}
	PaymentStatuses = []string{PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded, PaymentOverdue}
	PaymentMethods  = []string{MethodCash, MethodBankTransfer, MethodMobileMoney, MethodCard}

	invoicePrefix = "INV-"
)

// NowFunc is overridden in tests.
var NowFunc = time.Now

// Amounts are in minor currency units (cents).

type PaymentPlan struct {
	ID           int       `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Frequency    string    `json:"frequency" db:"frequency"`
	Amount       int64     `json:"amount" db:"amount"`
	Installments int       `json:"installments" db:"installments"`
	CurriculumID *int      `json:"curriculum_id" db:"curriculum_id"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type Invoice struct {
	ID                  int           `json:"id" db:"id"`
	Number              string        `json:"invoice_number" db:"invoice_number"`
	ChildProfileID      int           `json:"child_profile_id" db:"child_profile_id"`
	AcademicYearID      *int          `json:"academic_year_id" db:"academic_year_id"`
	CurriculumID        *int          `json:"curriculum_id" db:"curriculum_id"`
	ProgramEnrollmentID *int          `json:"program_enrollment_id" db:"program_enrollment_id"`
	IssueDate           time.Time     `json:"issue_date" db:"issue_date"`
	DueDate             time.Time     `json:"due_date" db:"due_date"`
	Status              string        `json:"status" db:"status"`
	Total               int64         `json:"total" db:"total"`
	Notes               string        `json:"notes" db:"notes"`
	Items               []InvoiceItem `json:"items" db:"-"`
	CreatedAt           time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at" db:"updated_at"`
}

type InvoiceItem struct {
	ID          int    `json:"id" db:"id"`
	InvoiceID   int    `json:"invoice_id" db:"invoice_id"`
	Description string `json:"description" db:"description"`
	Quantity    int    `json:"quantity" db:"quantity"`
	UnitPrice   int64  `json:"unit_price" db:"unit_price"`
	Amount      int64  `json:"amount" db:"amount"`
}

type Payment struct {
	ID             int        `json:"id" db:"id"`
	ChildProfileID int        `json:"child_profile_id" db:"child_profile_id"`
	InvoiceID      *int       `json:"invoice_id" db:"invoice_id"`
	PaymentPlanID  *int       `json:"payment_plan_id" db:"payment_plan_id"`
	Amount         int64      `json:"amount" db:"amount"`
	Method         string     `json:"method" db:"method"`
	Status         string     `json:"status" db:"status"`
	DueDate        *time.Time `json:"due_date" db:"due_date"`
	PaidAt         *time.Time `json:"paid_at" db:"paid_at"`
	Reference      string     `json:"reference" db:"reference"`
	Notes          string     `json:"notes" db:"notes"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// IsOverdue reports whether the payment is past due and not completed. It is evaluated at read time.
func (p Payment) IsOverdue(now time.Time) bool {
	return p.Status != PaymentCompleted && p.DueDate != nil && p.DueDate.Before(now)
}

func (p Payment) MarshalJSON() ([]byte, error) {
	type payment Payment
	return json.Marshal(struct {
		payment
		IsOverdue bool `json:"is_overdue"`
	}{payment(p), p.IsOverdue(NowFunc())})
}

// FormatAmount renders minor units as a decimal amount: 150050 -> "1500.50".
func FormatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

// InvoicePrefix returns the numbering prefix of the month of t: INV-YYYYMM-.
func InvoicePrefix(t time.Time) string {
	return invoicePrefix + t.Format("200601") + "-"
}

// NextInvoiceNumber returns the number following last within the month of now.
// The sequence restarts at 0001 when last belongs to another month (or is empty).
func NextInvoiceNumber(last string, now time.Time) string {
	prefix := InvoicePrefix(now)
	seq := 1
	if strings.HasPrefix(last, prefix) {
		if n, err := strconv.Atoi(strings.TrimPrefix(last, prefix)); err == nil && n > 0 {
			seq = n + 1
		}
	}
	return fmt.Sprintf("%s%04d", prefix, seq)
}

type PaymentPlanData struct {
	Name         string `json:"name" validate:"required,max=255"`
	Frequency    string `json:"frequency" validate:"required,frequency"`
	Amount       int64  `json:"amount" validate:"gt=0"`
	Installments int    `json:"installments" validate:"gte=1"`
	CurriculumID *int   `json:"curriculum_id"`
	IsActive     *bool  `json:"is_active"`
}

func (d *PaymentPlanData) Clean() {
	d.Name = core.CleanString(d.Name)
	d.Frequency = core.CleanString(d.Frequency, true /* lower */)
	if d.Installments == 0 {
		d.Installments = 1
	}
}

type InvoiceItemData struct {
	Description string `json:"description" validate:"required"`
	Quantity    int    `json:"quantity" validate:"gte=1"`
	UnitPrice   int64  `json:"unit_price" validate:"gte=0"`
}

type NewInvoice struct {
	ChildProfileID      int               `json:"child_profile_id" validate:"required"`
	AcademicYearID      *int              `json:"academic_year_id"`
	CurriculumID        *int              `json:"curriculum_id"`
	ProgramEnrollmentID *int              `json:"program_enrollment_id"`
	IssueDate           string            `json:"issue_date" validate:"omitempty,ymd"`
	DueDate             string            `json:"due_date" validate:"required,ymd"`
	Status              string            `json:"status" validate:"omitempty,oneof=draft issued"`
	Notes               string            `json:"notes"`
	Items               []InvoiceItemData `json:"items" validate:"required,min=1,dive"`
	// SendEmail notifies the parent once the invoice is issued.
	SendEmail bool `json:"send_email"`
}

type InvoiceStatusData struct {
	Status string `json:"status" validate:"required,invoice_status"`
}

type NewPayment struct {
	ChildProfileID int    `json:"child_profile_id" validate:"required"`
	InvoiceID      *int   `json:"invoice_id"`
	PaymentPlanID  *int   `json:"payment_plan_id"`
	Amount         int64  `json:"amount" validate:"gt=0"`
	Method         string `json:"method" validate:"omitempty,payment_method"`
	Status         string `json:"status" validate:"omitempty,payment_status"`
	DueDate        string `json:"due_date" validate:"omitempty,ymd"`
	PaidAt         string `json:"paid_at" validate:"omitempty,ymd"`
	Reference      string `json:"reference" validate:"max=255"`
	Notes          string `json:"notes"`
}

type PaymentStatusData struct {
	Status    string `json:"status" validate:"required,payment_status"`
	Reference string `json:"reference" validate:"max=255"`
}

type PlanFilter struct {
	CurriculumID int   `query:"curriculum_id"`
	IsActive     *bool `query:"is_active"`
}

type InvoiceFilter struct {
	ChildProfileID int    `query:"child_profile_id"`
	Status         string `query:"status"`
	Search         string `query:"search"` // invoice number
}

type PaymentFilter struct {
	ChildProfileID int    `query:"child_profile_id"`
	InvoiceID      int    `query:"invoice_id"`
	Status         string `query:"status"`
	// Overdue keeps (or excludes) payments overdue at Now.
	Overdue *bool     `query:"overdue"`
	Now     time.Time `query:"-"`
}
