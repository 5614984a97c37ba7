package template

import (
	"time"
)

// Category classifies a template by its marketing purpose
type Category string

const (
	CategoryWelcome        Category = "welcome"
	CategoryOrderConfirm   Category = "order_confirmation"
	CategoryShipping       Category = "shipping_notification"
	CategoryDelivery       Category = "delivery_confirmation"
	CategoryPaymentRemind  Category = "payment_reminder"
	CategoryPromotion      Category = "promotion"
	CategoryBirthday       Category = "birthday"
	CategoryAbandonedCart  Category = "abandoned_cart"
	CategoryFeedback       Category = "feedback_request"
	CategoryLoyaltyReward  Category = "loyalty_reward"
	CategoryCustom         Category = "custom"
)

// Template is a reusable SMS message body with {{name}} placeholders
type Template struct {
	ID         string    `json:"id"`
	StoreID    string    `json:"store_id"`
	Name       string    `json:"name"`
	Category   Category  `json:"category"`
	Body       string    `json:"body"`
	Variables  []string  `json:"variables,omitempty"` // declared placeholder names
	Active     bool      `json:"active"`
	UsageCount int       `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ListFilter contains filters for listing templates
type ListFilter struct {
	Category Category
	Active   *bool
}
