// Package notify delivers alert and run notifications over per-tenant
// channels: SMTP email, chat webhooks, and generic JSON webhooks. Delivery
// fans out to channels in parallel with per-channel retry; a slow or broken
// channel is isolated and cannot block or fail the others.
package notify
