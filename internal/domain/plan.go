package domain

// Plan is a subscription tier and its monthly token entitlement.
type Plan struct {
	ID            string `json:"id"`
	MonthlyTokens int64  `json:"monthly_tokens"`
}

// Product is a store SKU the client can purchase.
type Product struct {
	ID     string
	Kind   PaymentKind
	Tokens int64 // token packs only
	Plan   Plan  // subscriptions only
}
