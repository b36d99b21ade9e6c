// Package model defines the gorm row types for the coordination core's data
// model (spec §3): projects, agents, messages, recipients, inbox rows, and
// file reservations. Build-slot leases are filesystem JSON (internal/buildslot),
// not part of this relational schema.
package model

// Importance levels a message may carry.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceNormal Importance = "normal"
	ImportanceHigh   Importance = "high"
	ImportanceUrgent Importance = "urgent"
)

// ValidImportance reports whether s is one of the four recognised levels.
func ValidImportance(s string) bool {
	switch Importance(s) {
	case ImportanceLow, ImportanceNormal, ImportanceHigh, ImportanceUrgent:
		return true
	}
	return false
}

// RecipientRole distinguishes how a recipient row was addressed.
type RecipientRole string

const (
	RolePrimary RecipientRole = "primary"
	RoleCarbon  RecipientRole = "carbon"
	RoleBlind   RecipientRole = "blind"
)

// Project is a coordination scope, created on first reference (spec §3).
type Project struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	Slug       string `gorm:"uniqueIndex;size:200;not null"`
	HumanKey   string `gorm:"size:1024;not null"`
	CreatedTS  int64  `gorm:"not null"`
}

func (Project) TableName() string { return "projects" }

// Agent is a named participant within one project.
type Agent struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	ProjectID       int64  `gorm:"index:idx_agents_project_name,unique;not null"`
	Name            string `gorm:"index:idx_agents_project_name,unique;size:200;not null"`
	Program         string `gorm:"size:200;not null"`
	Model           string `gorm:"size:200"`
	TaskDescription string `gorm:"type:text"`
	LastActiveTS    int64  `gorm:"not null"`
	ArchivedTS      *int64
}

func (Agent) TableName() string { return "agents" }

// Message is an immutable record, created by the send operation.
type Message struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	ProjectID   int64  `gorm:"index:idx_messages_project_created;not null"`
	SenderID    int64  `gorm:"index;not null"`
	Subject     string `gorm:"size:200;not null"`
	BodyMD      string `gorm:"type:text;not null"`
	Importance  string `gorm:"size:20;not null"`
	AckRequired bool   `gorm:"not null"`
	ThreadID    string `gorm:"index;size:200"`
	CreatedTS   int64  `gorm:"index:idx_messages_project_created;not null"`
	Attachments string `gorm:"type:text"` // serialized attachment metadata (JSON)
}

func (Message) TableName() string { return "messages" }

// MessageRecipient links a message to an agent with a role. Created with the
// message, never mutated.
type MessageRecipient struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	MessageID int64  `gorm:"index;not null"`
	AgentID   int64  `gorm:"index;not null"`
	Role      string `gorm:"size:20;not null"`
}

func (MessageRecipient) TableName() string { return "message_recipients" }

// InboxRow is a per-recipient delivery record, created atomically with the
// message.
type InboxRow struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	MessageID int64 `gorm:"index;not null"`
	AgentID   int64 `gorm:"index:idx_inbox_agent;not null"`
	ReadTS    *int64
	AckTS     *int64
}

func (InboxRow) TableName() string { return "inbox" }

// FileReservation is a lease on a path pattern within a project.
type FileReservation struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	ProjectID   int64  `gorm:"index:idx_reservations_project_active;not null"`
	HolderID    int64  `gorm:"index;not null"`
	PathPattern string `gorm:"size:1024;not null"`
	Exclusive   bool   `gorm:"not null"`
	Reason      string `gorm:"type:text"`
	CreatedTS   int64  `gorm:"not null"`
	ExpiresTS   int64  `gorm:"index:idx_reservations_project_active;not null"`
	ReleasedTS  *int64
}

func (FileReservation) TableName() string { return "file_reservations" }

// ProductProjectLink resolves the `product_id` search facet (spec §6's table
// list, wired by SPEC_FULL §5) to the set of projects belonging to a product.
type ProductProjectLink struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	ProductID int64 `gorm:"index;not null"`
	ProjectID int64 `gorm:"index;not null"`
}

func (ProductProjectLink) TableName() string { return "product_project_links" }

// ContactLink records an approved cross-project contact relationship between
// two agents, consulted by the scoped executor's caller_scoped visibility
// policy (spec §4.2).
type ContactLink struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	FromAgentID int64  `gorm:"index:idx_contact_from_to;not null"`
	ToAgentID   int64  `gorm:"index:idx_contact_from_to;not null"`
	Approved    bool   `gorm:"not null"`
	ExpiresTS   int64  `gorm:"not null"`
}

func (ContactLink) TableName() string { return "contact_links" }

// AllTables lists every model migrated by internal/store/migrations.
func AllTables() []any {
	return []any{
		&Project{}, &Agent{}, &Message{}, &MessageRecipient{}, &InboxRow{},
		&FileReservation{}, &ProductProjectLink{}, &ContactLink{},
	}
}
