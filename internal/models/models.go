package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Link pairs a destination URL with its metadata and aliases. Links are
// never hard-deleted: the visit log and deletion metadata stay behind as
// an audit trail, and a deleted link never resolves again.
type Link struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"size:255" json:"title"`
	Destination string    `gorm:"type:text;not null" json:"destination"`
	Owner       string    `gorm:"size:64;index;not null" json:"owner"`
	OwnerIsOrg  bool      `gorm:"not null;default:false" json:"owner_is_org"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	Deleted   bool       `gorm:"not null;default:false;index" json:"deleted"`
	DeletedBy *Deleter   `gorm:"size:80" json:"deleted_by,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Denormalized counters, mutated only by the visit recorder. Their
	// sums stay reconcilable against the visit log, eventually.
	Visits       int64 `gorm:"not null;default:0" json:"visits"`
	UniqueVisits int64 `gorm:"not null;default:0" json:"unique_visits"`

	Aliases []Alias `gorm:"foreignKey:LinkID" json:"aliases,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Expired reports whether the link's expiration time has passed. Links
// without an expiration never expire.
func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// Alias is a short name resolving to its link's destination. Names are
// stored lower-case; uniqueness is enforced only across non-deleted rows
// so a soft-deleted alias never blocks re-use.
type Alias struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LinkID      uuid.UUID `gorm:"type:uuid;index;not null" json:"link_id"`
	Name        string    `gorm:"size:32;not null;index:idx_aliases_name,unique,where:deleted = false" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Deleted     bool      `gorm:"not null;default:false" json:"deleted"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Visit is one recorded redirect. Rows are append-only.
type Visit struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LinkID     uuid.UUID `gorm:"type:uuid;index:idx_visits_link;index:idx_visits_link_tracking" json:"link_id"`
	Alias      string    `gorm:"size:32;index" json:"alias"`
	TrackingID string    `gorm:"size:64;index:idx_visits_link_tracking" json:"tracking_id"`
	SourceIP   string    `gorm:"size:45" json:"source_ip"`
	UserAgent  string    `gorm:"type:text" json:"user_agent,omitempty"`
	Referer    string    `gorm:"type:text" json:"referer,omitempty"`

	CountryCode     string `gorm:"size:2" json:"country_code,omitempty"`
	SubdivisionCode string `gorm:"size:8" json:"subdivision_code,omitempty"`

	VisitedAt time.Time `gorm:"index;not null" json:"visited_at"`
}

// Visitor maps a source IP to an opaque tracking id, created once per
// distinct IP with first-writer-wins semantics.
type Visitor struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	IP        string    `gorm:"size:45;uniqueIndex;not null" json:"ip"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type Organization struct {
	ID        uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string      `gorm:"size:128;uniqueIndex;not null" json:"name"`
	Members   []OrgMember `gorm:"foreignKey:OrgID" json:"members,omitempty"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

type OrgMember struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID    uuid.UUID `gorm:"type:uuid;index:idx_org_member,unique" json:"org_id"`
	NetID    string    `gorm:"size:64;index;index:idx_org_member,unique;not null" json:"netid"`
	IsAdmin  bool      `gorm:"not null;default:false" json:"is_admin"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

type ReviewStatus string

const (
	StatusPending  ReviewStatus = "pending"
	StatusApproved ReviewStatus = "approved"
	StatusDenied   ReviewStatus = "denied"
)

type StatusChange struct {
	From     ReviewStatus `json:"from"`
	To       ReviewStatus `json:"to"`
	Modifier string       `json:"modifier"`
	At       time.Time    `json:"at"`
}

type StatusHistory []StatusChange

// PendingLink holds a flagged creation request until an administrator
// disposes of it. Deduplicated by destination.
type PendingLink struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"size:255" json:"title"`
	Destination string    `gorm:"type:text;uniqueIndex:idx_pending_destination;not null" json:"destination"`
	Owner       string    `gorm:"size:64;index;not null" json:"owner"`
	OwnerIsOrg  bool      `gorm:"not null;default:false" json:"owner_is_org"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`

	Status  ReviewStatus  `gorm:"size:16;not null;default:'pending'" json:"status"`
	History StatusHistory `gorm:"serializer:json;type:jsonb" json:"history"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RoleGrant persists a role held by an entity (a netid for user roles, a
// domain for blocked_url).
type RoleGrant struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Role      string    `gorm:"size:32;index:idx_role_entity,unique;not null" json:"role"`
	Entity    string    `gorm:"size:255;index:idx_role_entity,unique;not null" json:"entity"`
	GrantedBy string    `gorm:"size:64" json:"granted_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// PhishingDomain is one entry of the known-bad destination table
// consulted by the blocklist.
type PhishingDomain struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Domain    string    `gorm:"size:255;uniqueIndex;not null" json:"domain"`
	AddedBy   string    `gorm:"size:64" json:"added_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// DailyTraffic is the service-wide per-day visit rollup maintained by the
// analytics worker off the visit-event queue.
type DailyTraffic struct {
	Day    time.Time `gorm:"type:date;primaryKey" json:"day"`
	Visits int64     `gorm:"not null;default:0" json:"visits"`
}

// DeleterKind tags who (or what cascade) soft-deleted a link, replacing
// stringly-typed sentinels with a variant that still round-trips through
// a single text column.
type DeleterKind string

const (
	DeleterAdmin     DeleterKind = "admin"
	DeleterBlacklist DeleterKind = "blacklist"
	DeleterBlock     DeleterKind = "block"
)

type Deleter struct {
	Kind  DeleterKind
	NetID string // set only for DeleterAdmin
}

func AdminDeleter(netid string) *Deleter {
	return &Deleter{Kind: DeleterAdmin, NetID: netid}
}

func BlacklistDeleter() *Deleter { return &Deleter{Kind: DeleterBlacklist} }

func BlockDeleter() *Deleter { return &Deleter{Kind: DeleterBlock} }

func (d Deleter) Value() (driver.Value, error) {
	switch d.Kind {
	case DeleterAdmin:
		return "admin:" + d.NetID, nil
	case DeleterBlacklist, DeleterBlock:
		return string(d.Kind), nil
	}
	return nil, fmt.Errorf("unknown deleter kind %q", d.Kind)
}

func (d *Deleter) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Deleter", value)
	}

	switch {
	case strings.HasPrefix(s, "admin:"):
		d.Kind, d.NetID = DeleterAdmin, strings.TrimPrefix(s, "admin:")
	case s == string(DeleterBlacklist):
		d.Kind, d.NetID = DeleterBlacklist, ""
	case s == string(DeleterBlock):
		d.Kind, d.NetID = DeleterBlock, ""
	default:
		return fmt.Errorf("unknown deleter value %q", s)
	}
	return nil
}

func (d Deleter) String() string {
	if d.Kind == DeleterAdmin {
		return "admin:" + d.NetID
	}
	return string(d.Kind)
}

// All lists every model for migration.
func All() []interface{} {
	return []interface{}{
		&Link{},
		&Alias{},
		&Visit{},
		&Visitor{},
		&Organization{},
		&OrgMember{},
		&PendingLink{},
		&RoleGrant{},
		&PhishingDomain{},
		&DailyTraffic{},
	}
}
