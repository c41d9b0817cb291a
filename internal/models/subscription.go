package models

import "time"

// Subscription is a ledger entry binding a customer to a plan for one billing period.
type Subscription struct {
	CustomerID   int64     `json:"customerId"`
	PlanID       int64     `json:"planId"`
	SubscribedAt time.Time `json:"subscribedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// IsActive returns true if the entry has not yet expired at the given instant.
func (s *Subscription) IsActive(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// Credits is the monthly book allowance of a subscribed customer.
type Credits struct {
	Limit int `json:"limit"`
	Used  int `json:"used"`
}

// Remaining returns the number of books still available this period, never negative.
func (c Credits) Remaining() int {
	if c.Used >= c.Limit {
		return 0
	}
	return c.Limit - c.Used
}
