// Package fluid talks to the remote commerce platform on behalf of one shop:
// it trades install tokens for durable credentials, reconciles the webhook
// catalog against the subscriptions the platform holds, and pages through
// company data for resource sync. Every call is bearer-authenticated,
// timeout-bounded, and runs through the optional rate-limit policy hooks.
package fluid
