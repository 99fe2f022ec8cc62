package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core/billing"
	"github.com/trezcool/elimu/core/profile"
	testutil "github.com/trezcool/elimu/tests"
)

func freezeTime(t *testing.T, now time.Time) {
	prev := billing.NowFunc
	billing.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { billing.NowFunc = prev })
}

func invoiceData(childID int, due string, prices ...int64) billing.NewInvoice {
	data := billing.NewInvoice{ChildProfileID: childID, DueDate: due}
	for _, p := range prices {
		data.Items = append(data.Items, billing.InvoiceItemData{Description: "Tuition", Quantity: 2, UnitPrice: p})
	}
	return data
}

func TestService_CreateInvoice(t *testing.T) {
	freezeTime(t, time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))
	app := testutil.NewApp(t)
	ctx := context.Background()
	parent := testutil.CreateParent(t, app.ProfileRepo, "Jane", "Doe", "jane@test.test")
	child := testutil.CreateChild(t, app.ProfileRepo, parent.ID, "Tom", "Doe")

	data := invoiceData(child.ID, "2024-04-15", 10000, 2550)
	data.SendEmail = true
	inv, err := app.BillingSvc.CreateInvoice(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, "INV-202403-0001", inv.Number)
	assert.Equal(t, billing.InvoiceIssued, inv.Status)
	assert.Equal(t, int64(25100), inv.Total)
	require.Len(t, inv.Items, 2)
	assert.Equal(t, int64(20000), inv.Items[0].Amount)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), inv.IssueDate)

	sent := app.Mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "jane@test.test", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Invoice INV-202403-0001 has been issued for Tom Doe.")
	assert.Contains(t, sent[0].TextContent, "Total: 251.00")
	assert.Equal(t, map[string]string{"invoice_number": "INV-202403-0001"}, sent[0].Refs)

	second, err := app.BillingSvc.CreateInvoice(ctx, invoiceData(child.ID, "2024-04-15", 100))
	require.NoError(t, err)
	assert.Equal(t, "INV-202403-0002", second.Number)
	assert.Len(t, app.Mail.SentMessages(), 1)

	t.Run("numbering restarts every month", func(t *testing.T) {
		freezeTime(t, time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC))
		inv, err := app.BillingSvc.CreateInvoice(ctx, invoiceData(child.ID, "2024-05-01", 100))
		require.NoError(t, err)
		assert.Equal(t, "INV-202404-0001", inv.Number)
	})

	t.Run("due before issue", func(t *testing.T) {
		_, err := app.BillingSvc.CreateInvoice(ctx, invoiceData(child.ID, "2024-03-01", 100))
		testutil.AssertFieldError(t, err, "due_date", nil)
	})

	t.Run("unknown student", func(t *testing.T) {
		_, err := app.BillingSvc.CreateInvoice(ctx, invoiceData(999, "2024-04-15", 100))
		testutil.AssertFieldError(t, err, "child_profile_id", profile.ErrChildNotFound)
	})

	t.Run("no items", func(t *testing.T) {
		_, err := app.BillingSvc.CreateInvoice(ctx, invoiceData(child.ID, "2024-04-15"))
		assert.Error(t, err)
	})
}

func TestService_Payments(t *testing.T) {
	freezeTime(t, time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))
	app := testutil.NewApp(t)
	ctx := context.Background()
	parent := testutil.CreateParent(t, app.ProfileRepo, "Jane", "Doe", "")
	child := testutil.CreateChild(t, app.ProfileRepo, parent.ID, "Tom", "Doe")
	sibling := testutil.CreateChild(t, app.ProfileRepo, parent.ID, "Ann", "Doe")

	inv, err := app.BillingSvc.CreateInvoice(ctx, invoiceData(child.ID, "2024-04-15", 5000))
	require.NoError(t, err)

	t.Run("invoice of another student", func(t *testing.T) {
		_, err := app.BillingSvc.RecordPayment(ctx, billing.NewPayment{ChildProfileID: sibling.ID, InvoiceID: &inv.ID, Amount: 100})
		testutil.AssertFieldError(t, err, "invoice_id", billing.ErrInvoiceNotPayable)
	})

	first, err := app.BillingSvc.RecordPayment(ctx, billing.NewPayment{ChildProfileID: child.ID, InvoiceID: &inv.ID, Amount: 6000})
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentCompleted, first.Status)
	assert.Equal(t, billing.MethodCash, first.Method)
	require.NotNil(t, first.PaidAt)

	got, err := app.BillingSvc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceIssued, got.Status)

	_, err = app.BillingSvc.RecordPayment(ctx, billing.NewPayment{
		ChildProfileID: child.ID, InvoiceID: &inv.ID, Amount: 4000, Method: "Mobile_Money",
	})
	require.NoError(t, err)
	got, err = app.BillingSvc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoicePaid, got.Status)

	t.Run("paid invoice takes no more payments", func(t *testing.T) {
		_, err := app.BillingSvc.RecordPayment(ctx, billing.NewPayment{ChildProfileID: child.ID, InvoiceID: &inv.ID, Amount: 100})
		testutil.AssertFieldError(t, err, "invoice_id", billing.ErrInvoiceNotPayable)
	})

	t.Run("paid invoice is locked", func(t *testing.T) {
		_, err := app.BillingSvc.SetInvoiceStatus(ctx, inv.ID, billing.InvoiceStatusData{Status: "cancelled"})
		testutil.AssertFieldError(t, err, "status", billing.ErrInvoiceLocked)
	})
}

func TestService_OverduePayments(t *testing.T) {
	freezeTime(t, time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))
	app := testutil.NewApp(t)
	ctx := context.Background()
	parent := testutil.CreateParent(t, app.ProfileRepo, "Jane", "Doe", "")
	child := testutil.CreateChild(t, app.ProfileRepo, parent.ID, "Tom", "Doe")

	late, err := app.BillingSvc.RecordPayment(ctx, billing.NewPayment{
		ChildProfileID: child.ID, Amount: 100, Status: "pending", DueDate: "2024-03-01",
	})
	require.NoError(t, err)
	assert.Nil(t, late.PaidAt)
	upcoming, err := app.BillingSvc.RecordPayment(ctx, billing.NewPayment{
		ChildProfileID: child.ID, Amount: 100, Status: "pending", DueDate: "2024-04-01",
	})
	require.NoError(t, err)
	_, err = app.BillingSvc.RecordPayment(ctx, billing.NewPayment{
		ChildProfileID: child.ID, Amount: 100, DueDate: "2024-03-01",
	})
	require.NoError(t, err)

	overdue, err := app.BillingSvc.QueryPayments(ctx, billing.PaymentFilter{Overdue: testutil.Ptr(true)})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)

	// evaluated when read, not when stored
	freezeTime(t, time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC))
	overdue, err = app.BillingSvc.QueryPayments(ctx, billing.PaymentFilter{Overdue: testutil.Ptr(true)})
	require.NoError(t, err)
	assert.Len(t, overdue, 2)

	settled, err := app.BillingSvc.SetPaymentStatus(ctx, upcoming.ID, billing.PaymentStatusData{Status: "Completed", Reference: "MPESA-1"})
	require.NoError(t, err)
	assert.False(t, settled.IsOverdue(billing.NowFunc()))
	assert.Equal(t, "MPESA-1", settled.Reference)
	require.NotNil(t, settled.PaidAt)
}

func TestService_PaymentPlans(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	c := testutil.CreateCurriculum(t, app.CurriculumRepo, "Primary", "PRIM")
	other := testutil.CreateCurriculum(t, app.CurriculumRepo, "Secondary", "SEC")

	termly, err := app.BillingSvc.CreatePaymentPlan(ctx, billing.PaymentPlanData{
		Name: "Termly", Frequency: "Quarterly", Amount: 30000, CurriculumID: &c.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, termly.Installments)
	_, err = app.BillingSvc.CreatePaymentPlan(ctx, billing.PaymentPlanData{Name: "Any", Frequency: "annual", Amount: 100000})
	require.NoError(t, err)
	_, err = app.BillingSvc.CreatePaymentPlan(ctx, billing.PaymentPlanData{
		Name: "Old", Frequency: "monthly", Amount: 10000, IsActive: testutil.Ptr(false),
	})
	require.NoError(t, err)
	_, err = app.BillingSvc.CreatePaymentPlan(ctx, billing.PaymentPlanData{
		Name: "Secondary only", Frequency: "monthly", Amount: 10000, CurriculumID: &other.ID,
	})
	require.NoError(t, err)

	plans := app.BillingSvc.ActivePlansFor(ctx, c.ID)
	names := make([]string, 0, len(plans))
	for _, p := range plans {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Any", "Termly"}, names)

	_, err = app.BillingSvc.CreatePaymentPlan(ctx, billing.PaymentPlanData{Name: "Bad", Frequency: "weekly", Amount: 1})
	assert.Error(t, err)
}
