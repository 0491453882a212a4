package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type installationRecord struct {
	bun.BaseModel `bun:"table:droplet_installations,alias:di"`

	ID                       string         `bun:"id,pk"`
	InstallationID           string         `bun:"installation_id,notnull"`
	CompanyID                string         `bun:"company_id"`
	CompanyName              string         `bun:"company_name"`
	ShopDomain               string         `bun:"shop_domain"`
	EncryptedToken           []byte         `bun:"encrypted_token"`
	WebhookVerificationToken string         `bun:"webhook_verification_token"`
	Status                   string         `bun:"status,notnull"`
	Configuration            map[string]any `bun:"configuration,type:jsonb,notnull"`
	Metadata                 map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt                time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt                time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryRecord struct {
	bun.BaseModel `bun:"table:webhook_deliveries,alias:wd"`

	ID             string         `bun:"id,pk"`
	InstallationID string         `bun:"installation_id"`
	DeliveryID     string         `bun:"delivery_id,notnull"`
	EventType      string         `bun:"event_type,notnull"`
	Payload        map[string]any `bun:"payload,type:jsonb,notnull"`
	Processed      bool           `bun:"processed,notnull"`
	ProcessedAt    *time.Time     `bun:"processed_at,nullzero"`
	Error          string         `bun:"error"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type activityRecord struct {
	bun.BaseModel `bun:"table:droplet_activity_log,alias:dal"`

	ID             string         `bun:"id,pk"`
	InstallationID string         `bun:"installation_id,notnull"`
	ActivityType   string         `bun:"activity_type,notnull"`
	Status         string         `bun:"status,notnull"`
	Details        string         `bun:"details"`
	Metadata       map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type productRecord struct {
	bun.BaseModel `bun:"table:droplet_products,alias:dp"`

	ID             string         `bun:"id,pk"`
	InstallationID string         `bun:"installation_id,notnull"`
	ResourceID     string         `bun:"resource_id,notnull"`
	Title          string         `bun:"title"`
	SKU            string         `bun:"sku"`
	Price          string         `bun:"price"`
	Status         string         `bun:"status"`
	Payload        map[string]any `bun:"payload,type:jsonb,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type orderRecord struct {
	bun.BaseModel `bun:"table:droplet_orders,alias:dor"`

	ID             string         `bun:"id,pk"`
	InstallationID string         `bun:"installation_id,notnull"`
	ResourceID     string         `bun:"resource_id,notnull"`
	OrderNumber    string         `bun:"order_number"`
	Total          string         `bun:"total"`
	Status         string         `bun:"status"`
	PlacedAt       *time.Time     `bun:"placed_at,nullzero"`
	Payload        map[string]any `bun:"payload,type:jsonb,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type customerRecord struct {
	bun.BaseModel `bun:"table:droplet_customers,alias:dc"`

	ID             string         `bun:"id,pk"`
	InstallationID string         `bun:"installation_id,notnull"`
	ResourceID     string         `bun:"resource_id,notnull"`
	Email          string         `bun:"email"`
	Name           string         `bun:"name"`
	Phone          string         `bun:"phone"`
	Payload        map[string]any `bun:"payload,type:jsonb,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type repRecord struct {
	bun.BaseModel `bun:"table:droplet_reps,alias:dr"`

	ID             string         `bun:"id,pk"`
	InstallationID string         `bun:"installation_id,notnull"`
	ResourceID     string         `bun:"resource_id,notnull"`
	Email          string         `bun:"email"`
	Name           string         `bun:"name"`
	Role           string         `bun:"role"`
	Payload        map[string]any `bun:"payload,type:jsonb,notnull"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:rate_limit_states,alias:rls"`

	ID         string         `bun:"id,pk"`
	ShopDomain string         `bun:"shop_domain,notnull"`
	BucketKey  string         `bun:"bucket_key,notnull"`
	Limit      int            `bun:"rate_limit"`
	Remaining  int            `bun:"remaining"`
	ResetAt    *time.Time     `bun:"reset_at,nullzero"`
	RetryAfter *int           `bun:"retry_after_seconds,nullzero"`
	Metadata   map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
