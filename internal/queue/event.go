// Package queue defines message payloads exchanged over the message broker.
package queue

import "time"

// Email event kinds.
const (
    KindPasswordReset   = "password_reset"
    KindAffiliateInvite = "affiliate_invite"
)

// EmailEvent asks the mail worker to deliver a link to one recipient. It
// carries the finished link so the worker never needs the primary store.
type EmailEvent struct {
    Kind      string    `json:"kind"`
    To        string    `json:"to"`
    Link      string    `json:"link"`
    CreatedAt time.Time `json:"created_at"`
}
