package store

import (
	"context"
	"time"

	"github.com/agentmail-core/agentmail/internal/breaker"
	"github.com/agentmail-core/agentmail/internal/clock"
	"github.com/agentmail-core/agentmail/internal/errs"
	"github.com/agentmail-core/agentmail/internal/metrics"
	"github.com/agentmail-core/agentmail/internal/model"
	"github.com/agentmail-core/agentmail/internal/retry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store is the relational facade consumed by the search, summarisation,
// and reservation components and by the boundary handlers. Every method
// runs its store call through a retry.Loop bound to the store breaker, so
// callers never see raw driver errors — only classified *errs.Error.
type Store struct {
	pool    *Pool
	loop    *retry.Loop
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Collector
}

// New wires a Store on top of an already-open Pool and the store breaker
// from the registry.
func New(pool *Pool, b *breaker.Breaker, policy retry.Policy, clk clock.Clock, logger *zap.Logger) *Store {
	return &Store{
		pool:   pool,
		loop:   retry.New(policy, b, logger),
		clock:  clk,
		logger: logger.With(zap.String("component", "store")),
	}
}

// SetMetricsCollector attaches a metrics collector so every run() call
// reports its duration. A nil collector is a no-op, matching the
// nil-disables convention used by modelclient.ResilientClient.
func (s *Store) SetMetricsCollector(collector *metrics.Collector) {
	s.metrics = collector
}

func (s *Store) db(ctx context.Context) *gorm.DB {
	return s.pool.DB().WithContext(ctx)
}

// run executes fn through the retry loop, translating plain gorm/sql errors
// into classified store errors on the way out, and reports op's duration to
// the metrics collector if one is attached.
func (s *Store) run(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	start := time.Now()
	err := s.loop.Do(ctx, func(ctx context.Context) error {
		if err := fn(s.db(ctx)); err != nil {
			if errs.CodeOf(err) != "" {
				return err
			}
			return errs.ClassifyStoreError(err)
		}
		return nil
	})
	if s.metrics != nil {
		s.metrics.RecordDBQuery("sqlite", op, time.Since(start))
	}
	return err
}

// --- Projects ---------------------------------------------------------

// GetOrCreateProject resolves a project by slug, creating it on first
// reference per the data model's "created on first reference" rule.
func (s *Store) GetOrCreateProject(ctx context.Context, slug, humanKey string) (*model.Project, error) {
	var p model.Project
	err := s.run(ctx, "GetOrCreateProject", func(db *gorm.DB) error {
		res := db.Where("slug = ?", slug).First(&p)
		if res.Error == nil {
			return nil
		}
		if !isNotFoundGorm(res.Error) {
			return res.Error
		}
		p = model.Project{Slug: slug, HumanKey: humanKey, CreatedTS: s.clock.NowMicros()}
		return db.Create(&p).Error
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProject fetches a project by id.
func (s *Store) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	var p model.Project
	err := s.run(ctx, "GetProject", func(db *gorm.DB) error {
		res := db.First(&p, id)
		if isNotFoundGorm(res.Error) {
			return errs.NotFound("project", id)
		}
		return res.Error
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ProjectsForProduct resolves the product_id search facet to its linked
// project ids.
func (s *Store) ProjectsForProduct(ctx context.Context, productID int64) ([]int64, error) {
	var ids []int64
	err := s.run(ctx, "ProjectsForProduct", func(db *gorm.DB) error {
		var links []model.ProductProjectLink
		if err := db.Where("product_id = ?", productID).Find(&links).Error; err != nil {
			return err
		}
		ids = make([]int64, len(links))
		for i, l := range links {
			ids[i] = l.ProjectID
		}
		return nil
	})
	return ids, err
}

// --- Agents -------------------------------------------------------------

// RegisterAgent creates or updates an agent's registration, touching its
// last-active timestamp. Name is unique within a project.
func (s *Store) RegisterAgent(ctx context.Context, projectID int64, name, program, modelName, taskDescription string) (*model.Agent, error) {
	var a model.Agent
	now := s.clock.NowMicros()
	err := s.run(ctx, "RegisterAgent", func(db *gorm.DB) error {
		res := db.Where("project_id = ? AND name = ?", projectID, name).First(&a)
		if res.Error == nil {
			a.Program = program
			a.Model = modelName
			a.TaskDescription = taskDescription
			a.LastActiveTS = now
			a.ArchivedTS = nil
			return db.Save(&a).Error
		}
		if !isNotFoundGorm(res.Error) {
			return res.Error
		}
		a = model.Agent{
			ProjectID:       projectID,
			Name:            name,
			Program:         program,
			Model:           modelName,
			TaskDescription: taskDescription,
			LastActiveTS:    now,
		}
		return db.Create(&a).Error
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAgent fetches an agent by id, verifying project ownership.
func (s *Store) GetAgent(ctx context.Context, projectID, agentID int64) (*model.Agent, error) {
	var a model.Agent
	err := s.run(ctx, "GetAgent", func(db *gorm.DB) error {
		res := db.Where("id = ? AND project_id = ?", agentID, projectID).First(&a)
		if isNotFoundGorm(res.Error) {
			return errs.NotFound("agent", agentID)
		}
		return res.Error
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ResolveAgentByName looks an agent up by name within a project, case
// sensitively (aliasing/case-insensitive matching happens at the boundary
// layer, not here).
func (s *Store) ResolveAgentByName(ctx context.Context, projectID int64, name string) (*model.Agent, error) {
	var a model.Agent
	err := s.run(ctx, "ResolveAgentByName", func(db *gorm.DB) error {
		res := db.Where("project_id = ? AND name = ?", projectID, name).First(&a)
		if isNotFoundGorm(res.Error) {
			return errs.NotFound("agent", name)
		}
		return res.Error
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ResolveAgentByNameAnyProject looks an agent up by name without a project
// constraint, for callers (like the search executor) that know only a
// caller's name and not which project they belong to. Agent names are
// unique per project, not globally, so a name shared across projects
// resolves to whichever row was created first.
func (s *Store) ResolveAgentByNameAnyProject(ctx context.Context, name string) (*model.Agent, error) {
	var a model.Agent
	err := s.run(ctx, "ResolveAgentByNameAnyProject", func(db *gorm.DB) error {
		res := db.Where("name = ?", name).Order("id ASC").First(&a)
		if isNotFoundGorm(res.Error) {
			return errs.NotFound("agent", name)
		}
		return res.Error
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ArchiveAgent soft-archives an agent; agents are never hard-deleted.
func (s *Store) ArchiveAgent(ctx context.Context, projectID, agentID int64) error {
	now := s.clock.NowMicros()
	return s.run(ctx, "ArchiveAgent", func(db *gorm.DB) error {
		res := db.Model(&model.Agent{}).
			Where("id = ? AND project_id = ?", agentID, projectID).
			Update("archived_ts", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.NotFound("agent", agentID)
		}
		return nil
	})
}

// --- Messages & recipients ----------------------------------------------

// RecipientSpec describes one recipient of a new message.
type RecipientSpec struct {
	AgentID int64
	Role    model.RecipientRole
}

// SendMessageInput bundles the fields required to atomically create a
// message, its recipient rows, and its inbox rows.
type SendMessageInput struct {
	ProjectID   int64
	SenderID    int64
	Subject     string
	BodyMD      string
	Importance  model.Importance
	AckRequired bool
	ThreadID    string
	Attachments string
	Recipients  []RecipientSpec
}

// SendMessage creates a message atomically with its recipient and inbox
// rows, enforcing the invariant that an inbox row exists for every
// recipient row and that at least one primary recipient is present.
func (s *Store) SendMessage(ctx context.Context, in SendMessageInput) (*model.Message, error) {
	if len(in.Recipients) == 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "message requires at least one recipient")
	}
	hasPrimary := false
	for _, r := range in.Recipients {
		if r.Role == model.RolePrimary {
			hasPrimary = true
			break
		}
	}
	if !hasPrimary {
		return nil, errs.New(errs.CodeInvalidArgument, "message requires at least one primary recipient")
	}

	var msg model.Message
	now := s.clock.NowMicros()
	err := s.run(ctx, "SendMessage", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			msg = model.Message{
				ProjectID:   in.ProjectID,
				SenderID:    in.SenderID,
				Subject:     in.Subject,
				BodyMD:      in.BodyMD,
				Importance:  string(in.Importance),
				AckRequired: in.AckRequired,
				ThreadID:    in.ThreadID,
				CreatedTS:   now,
				Attachments: in.Attachments,
			}
			if err := tx.Create(&msg).Error; err != nil {
				return err
			}
			for _, r := range in.Recipients {
				rec := model.MessageRecipient{MessageID: msg.ID, AgentID: r.AgentID, Role: string(r.Role)}
				if err := tx.Create(&rec).Error; err != nil {
					return err
				}
				inbox := model.InboxRow{MessageID: msg.ID, AgentID: r.AgentID}
				if err := tx.Create(&inbox).Error; err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMessage fetches a message by id within a project.
func (s *Store) GetMessage(ctx context.Context, projectID, messageID int64) (*model.Message, error) {
	var m model.Message
	err := s.run(ctx, "GetMessage", func(db *gorm.DB) error {
		res := db.Where("id = ? AND project_id = ?", messageID, projectID).First(&m)
		if isNotFoundGorm(res.Error) {
			return errs.NotFound("message", messageID)
		}
		return res.Error
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ThreadMessages returns every message sharing a thread id within a
// project, ordered by (created_ts, id) per the total-order guarantee.
func (s *Store) ThreadMessages(ctx context.Context, projectID int64, threadID string) ([]model.Message, error) {
	var rows []model.Message
	err := s.run(ctx, "ThreadMessages", func(db *gorm.DB) error {
		return db.Where("project_id = ? AND thread_id = ?", projectID, threadID).
			Order("created_ts ASC, id ASC").
			Find(&rows).Error
	})
	return rows, err
}

// Recipients returns the recipient rows for a message.
func (s *Store) Recipients(ctx context.Context, messageID int64) ([]model.MessageRecipient, error) {
	var rows []model.MessageRecipient
	err := s.run(ctx, "Recipients", func(db *gorm.DB) error {
		return db.Where("message_id = ?", messageID).Find(&rows).Error
	})
	return rows, err
}

// --- Inbox ----------------------------------------------------------------

// InboxFor returns the inbox rows for an agent, newest first, optionally
// limited to unread.
func (s *Store) InboxFor(ctx context.Context, agentID int64, unreadOnly bool, limit int) ([]model.InboxRow, error) {
	var rows []model.InboxRow
	err := s.run(ctx, "InboxFor", func(db *gorm.DB) error {
		q := db.Where("agent_id = ?", agentID)
		if unreadOnly {
			q = q.Where("read_ts IS NULL")
		}
		q = q.Order("id DESC")
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q.Find(&rows).Error
	})
	return rows, err
}

// MarkRead sets read_ts on an inbox row if it isn't already set.
func (s *Store) MarkRead(ctx context.Context, agentID, messageID int64) error {
	now := s.clock.NowMicros()
	return s.run(ctx, "MarkRead", func(db *gorm.DB) error {
		res := db.Model(&model.InboxRow{}).
			Where("agent_id = ? AND message_id = ? AND read_ts IS NULL", agentID, messageID).
			Update("read_ts", now)
		return res.Error
	})
}

// Ack sets ack_ts, implying read_ts if it was not already set (the data
// model's "ack implies read >= it" invariant).
func (s *Store) Ack(ctx context.Context, agentID, messageID int64) error {
	now := s.clock.NowMicros()
	return s.run(ctx, "Ack", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			var row model.InboxRow
			res := tx.Where("agent_id = ? AND message_id = ?", agentID, messageID).First(&row)
			if isNotFoundGorm(res.Error) {
				return errs.NotFound("inbox row", messageID)
			}
			if res.Error != nil {
				return res.Error
			}
			if row.ReadTS == nil {
				row.ReadTS = &now
			}
			row.AckTS = &now
			return tx.Save(&row).Error
		})
	})
}

// --- Reservations -----------------------------------------------------

// ActiveReservations returns every reservation in a project that is not
// released and has not expired as of now.
func (s *Store) ActiveReservations(ctx context.Context, projectID int64) ([]model.FileReservation, error) {
	var rows []model.FileReservation
	now := s.clock.NowMicros()
	err := s.run(ctx, "ActiveReservations", func(db *gorm.DB) error {
		return db.Where("project_id = ? AND released_ts IS NULL AND expires_ts > ?", projectID, now).
			Find(&rows).Error
	})
	return rows, err
}

// AllReservations returns every reservation in a project regardless of
// state.
func (s *Store) AllReservations(ctx context.Context, projectID int64) ([]model.FileReservation, error) {
	var rows []model.FileReservation
	err := s.run(ctx, "AllReservations", func(db *gorm.DB) error {
		return db.Where("project_id = ?", projectID).Order("created_ts DESC, id ASC").Find(&rows).Error
	})
	return rows, err
}

// ReservationsByHolder returns reservations held by one agent.
func (s *Store) ReservationsByHolder(ctx context.Context, projectID, holderID int64) ([]model.FileReservation, error) {
	var rows []model.FileReservation
	err := s.run(ctx, "ReservationsByHolder", func(db *gorm.DB) error {
		return db.Where("project_id = ? AND holder_id = ?", projectID, holderID).
			Order("created_ts DESC, id ASC").Find(&rows).Error
	})
	return rows, err
}

// ExpiringSoon returns active reservations whose expiry falls within the
// given horizon from now.
func (s *Store) ExpiringSoon(ctx context.Context, projectID int64, horizonMicros int64) ([]model.FileReservation, error) {
	var rows []model.FileReservation
	now := s.clock.NowMicros()
	err := s.run(ctx, "ExpiringSoon", func(db *gorm.DB) error {
		return db.Where("project_id = ? AND released_ts IS NULL AND expires_ts > ? AND expires_ts <= ?",
			projectID, now, now+horizonMicros).
			Order("expires_ts ASC").Find(&rows).Error
	})
	return rows, err
}

// CreateReservation inserts a new reservation row. Conflict checking is the
// caller's responsibility (internal/reservation), not the store's — the
// store only persists the claim.
func (s *Store) CreateReservation(ctx context.Context, projectID, holderID int64, pattern string, exclusive bool, reason string, ttlSeconds int64) (*model.FileReservation, error) {
	now := s.clock.NowMicros()
	if ttlSeconds < 60 {
		ttlSeconds = 60
	}
	r := model.FileReservation{
		ProjectID:   projectID,
		HolderID:    holderID,
		PathPattern: pattern,
		Exclusive:   exclusive,
		Reason:      reason,
		CreatedTS:   now,
		ExpiresTS:   now + ttlSeconds*1_000_000,
	}
	err := s.run(ctx, "CreateReservation", func(db *gorm.DB) error {
		return db.Create(&r).Error
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ReleaseReservation idempotently releases a reservation. Only the holder
// or an administrative caller may release; callerID == 0 signals an
// administrative caller.
func (s *Store) ReleaseReservation(ctx context.Context, reservationID, callerID int64) error {
	now := s.clock.NowMicros()
	return s.run(ctx, "ReleaseReservation", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			var r model.FileReservation
			res := tx.First(&r, reservationID)
			if isNotFoundGorm(res.Error) {
				return errs.NotFound("reservation", reservationID)
			}
			if res.Error != nil {
				return res.Error
			}
			if r.ReleasedTS != nil {
				return nil // idempotent
			}
			if callerID != 0 && r.HolderID != callerID {
				return errs.New(errs.CodeInvalidArgument, "only the holder or an administrator may release this reservation")
			}
			r.ReleasedTS = &now
			return tx.Save(&r).Error
		})
	})
}

// --- Contact links --------------------------------------------------------

// ApprovedContacts returns the set of agent ids that fromAgent has an
// approved, unexpired contact link to, for the caller_scoped visibility
// policy.
func (s *Store) ApprovedContacts(ctx context.Context, fromAgentID int64) ([]int64, error) {
	var ids []int64
	now := s.clock.NowMicros()
	err := s.run(ctx, "ApprovedContacts", func(db *gorm.DB) error {
		var links []model.ContactLink
		if err := db.Where("from_agent_id = ? AND approved = ? AND expires_ts > ?", fromAgentID, true, now).
			Find(&links).Error; err != nil {
			return err
		}
		ids = make([]int64, len(links))
		for i, l := range links {
			ids[i] = l.ToAgentID
		}
		return nil
	})
	return ids, err
}

// ProjectsForAgent returns the distinct project ids an agent belongs to
// (here, trivially the agent's own project — multi-project membership
// would extend this), used to build the caller's visible-project set.
func (s *Store) ProjectsForAgent(ctx context.Context, agentID int64) ([]int64, error) {
	var a model.Agent
	err := s.run(ctx, "ProjectsForAgent", func(db *gorm.DB) error {
		res := db.First(&a, agentID)
		if isNotFoundGorm(res.Error) {
			return errs.NotFound("agent", agentID)
		}
		return res.Error
	})
	if err != nil {
		return nil, err
	}
	return []int64{a.ProjectID}, nil
}

// ResetProject cascades an administrative reset across one project's
// messages, recipients, inbox rows, and file reservations (spec §3:
// "destruction is an explicit administrative reset"). Agents and the
// project row itself survive the reset; only the mutable coordination
// state they produced is cleared.
func (s *Store) ResetProject(ctx context.Context, projectID int64) error {
	return s.run(ctx, "ResetProject", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			var messageIDs []int64
			if err := tx.Model(&model.Message{}).Where("project_id = ?", projectID).Pluck("id", &messageIDs).Error; err != nil {
				return err
			}
			if len(messageIDs) > 0 {
				if err := tx.Where("message_id IN ?", messageIDs).Delete(&model.MessageRecipient{}).Error; err != nil {
					return err
				}
				if err := tx.Where("message_id IN ?", messageIDs).Delete(&model.InboxRow{}).Error; err != nil {
					return err
				}
			}
			if err := tx.Where("project_id = ?", projectID).Delete(&model.Message{}).Error; err != nil {
				return err
			}
			return tx.Where("project_id = ?", projectID).Delete(&model.FileReservation{}).Error
		})
	})
}

// Pool exposes the underlying connection pool.
func (s *Store) Pool() *Pool { return s.pool }

// RunRetried executes fn through the store's retry loop and breaker,
// exposing the same wrapping CRUD methods get to callers (like the search
// executor) that issue their own raw SQL against the pool.
func (s *Store) RunRetried(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	return s.run(ctx, op, fn)
}

func isNotFoundGorm(err error) bool {
	return err == gorm.ErrRecordNotFound
}
