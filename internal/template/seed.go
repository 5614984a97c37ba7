package template

import (
	"context"
	"fmt"
)

// Defaults returns the stock template catalog a new store starts with.
// Bodies are in Persian; placeholder names stay Latin so they match the
// variable names the renderer receives.
func Defaults() []*Template {
	defs := []*Template{
		{
			Name:     "خوش‌آمدگویی",
			Category: CategoryWelcome,
			Body:     "{{customer_name}} عزیز، به {{store_name}} خوش آمدید! از اولین خرید خود لذت ببرید.",
		},
		{
			Name:     "تایید سفارش",
			Category: CategoryOrderConfirm,
			Body:     "{{customer_name}} عزیز، سفارش {{order_number}} شما به مبلغ {{order_total}} ریال ثبت شد. {{store_name}}",
		},
		{
			Name:     "اطلاع‌رسانی ارسال",
			Category: CategoryShipping,
			Body:     "سفارش {{order_number}} شما ارسال شد و به‌زودی به دست شما می‌رسد. {{store_name}}",
		},
		{
			Name:     "تایید تحویل",
			Category: CategoryDelivery,
			Body:     "{{customer_name}} عزیز، سفارش {{order_number}} تحویل داده شد. از خرید شما سپاسگزاریم. {{store_name}}",
		},
		{
			Name:     "یادآوری پرداخت",
			Category: CategoryPaymentRemind,
			Body:     "{{customer_name}} عزیز، پرداخت سفارش {{order_number}} شما هنوز تکمیل نشده است. {{store_name}}",
		},
		{
			Name:     "اطلاع‌رسانی تخفیف",
			Category: CategoryPromotion,
			Body:     "{{customer_name}} عزیز، فروش ویژه {{store_name}} آغاز شد! همین حالا سر بزنید.",
		},
		{
			Name:     "تبریک تولد",
			Category: CategoryBirthday,
			Body:     "{{customer_name}} عزیز، تولدتان مبارک! هدیه‌ای از طرف {{store_name}} منتظر شماست.",
		},
		{
			Name:     "یادآوری سبد خرید",
			Category: CategoryAbandonedCart,
			Body:     "{{customer_name}} عزیز، سبد خرید شما در {{store_name}} منتظر شماست. خرید خود را تکمیل کنید.",
		},
		{
			Name:     "نظرسنجی خرید",
			Category: CategoryFeedback,
			Body:     "{{customer_name}} عزیز، نظر شما درباره سفارش {{order_number}} برای ما ارزشمند است. {{store_name}}",
		},
		{
			Name:     "پاداش وفاداری",
			Category: CategoryLoyaltyReward,
			Body:     "{{customer_name}} عزیز، به پاس همراهی شما با {{store_name}} یک کد تخفیف ویژه دریافت کردید.",
		},
	}

	for _, d := range defs {
		d.Variables = ExtractVariables(d.Body)
		d.Active = true
	}
	return defs
}

// SeedDefaults creates the stock templates a store is missing. Existing
// templates with the same name are left untouched, so re-seeding is safe.
// Returns the templates actually created.
func (s *Storage) SeedDefaults(ctx context.Context, storeID string) ([]*Template, error) {
	existing, err := s.List(ctx, storeID, ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, t := range existing {
		have[t.Name] = true
	}

	var created []*Template
	for _, def := range Defaults() {
		if have[def.Name] {
			continue
		}
		tmpl := *def
		tmpl.StoreID = storeID
		if err := s.Create(ctx, &tmpl); err != nil {
			return created, fmt.Errorf("failed to seed template %q: %w", tmpl.Name, err)
		}
		created = append(created, &tmpl)
	}
	return created, nil
}
