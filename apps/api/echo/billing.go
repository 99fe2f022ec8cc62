package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/billing"
)

type billingApi struct {
	svc billing.Service
}

func registerBillingAPI(g *echo.Group, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := billingApi{svc: deps.BillingSvc}

	pg := g.Group("/payment-plans", auth, adminMiddleware())
	pg.GET("", api.queryPlans)
	crud[billing.PaymentPlan, billing.PaymentPlanData]{
		name:    "payment plan",
		create:  api.svc.CreatePaymentPlan,
		get:     api.svc.GetPaymentPlan,
		update:  api.svc.UpdatePaymentPlan,
		destroy: api.svc.DeletePaymentPlan,
	}.register(pg)

	ig := g.Group("/invoices", auth, adminMiddleware())
	ig.GET("", api.queryInvoices)
	crud[billing.Invoice, billing.NewInvoice]{
		name:   "invoice",
		create: api.svc.CreateInvoice,
		get:    api.svc.GetInvoice,
	}.register(ig)
	ig.PUT("/:id/status", api.setInvoiceStatus)

	yg := g.Group("/payments", auth, adminMiddleware())
	yg.GET("", api.queryPayments)
	crud[billing.Payment, billing.NewPayment]{
		name:   "payment",
		create: api.svc.RecordPayment,
		get:    api.svc.GetPayment,
	}.register(yg)
	yg.PUT("/:id/status", api.setPaymentStatus)
}

func (api *billingApi) queryPlans(ctx echo.Context) error {
	q := newQueryParams(ctx, nil)
	filter := billing.PlanFilter{
		CurriculumID: q.Int("curriculum_id"),
		IsActive:     q.Bool("is_active"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	list, err := api.svc.QueryPaymentPlans(ctx.Request().Context(), filter)
	return listResponse(ctx, list, err, "payment plans")
}

func (api *billingApi) queryInvoices(ctx echo.Context) error {
	q := newQueryParams(ctx, nil)
	filter := billing.InvoiceFilter{
		ChildProfileID: q.Int("child_profile_id"),
		Status:         q.String("status"),
		Search:         q.String("search"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	list, err := api.svc.QueryInvoices(ctx.Request().Context(), filter)
	return listResponse(ctx, list, err, "invoices")
}

func (api *billingApi) setInvoiceStatus(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data billing.InvoiceStatusData
	if err = bindBody(ctx, &data, "InvoiceStatusData"); err != nil {
		return err
	}
	inv, err := api.svc.SetInvoiceStatus(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "setting invoice status")
	}
	return ctx.JSON(http.StatusOK, inv)
}

// queryPayments evaluates ?overdue=true|false at request time.
func (api *billingApi) queryPayments(ctx echo.Context) error {
	q := newQueryParams(ctx, nil)
	filter := billing.PaymentFilter{
		ChildProfileID: q.Int("child_profile_id"),
		InvoiceID:      q.Int("invoice_id"),
		Status:         q.String("status"),
		Overdue:        q.Bool("overdue"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	list, err := api.svc.QueryPayments(ctx.Request().Context(), filter)
	return listResponse(ctx, list, err, "payments")
}

func (api *billingApi) setPaymentStatus(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data billing.PaymentStatusData
	if err = bindBody(ctx, &data, "PaymentStatusData"); err != nil {
		return err
	}
	p, err := api.svc.SetPaymentStatus(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "setting payment status")
	}
	return ctx.JSON(http.StatusOK, p)
}
