// Package ingress classifies inbound platform webhooks and drives the core
// service: lifecycle events start or stop installations, resource events
// upsert mirror rows, everything else is logged and dropped. The platform
// must see HTTP 200 for any parseable payload, so routing failures never
// become response failures.
package ingress
