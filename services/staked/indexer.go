package staked

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stakeledger/config"
	"stakeledger/core/events"
	"stakeledger/observability"
)

// EventRecord is the persisted form of a committed ledger event.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Seq        uint64    `gorm:"uniqueIndex" json:"seq"`
	Type       string    `gorm:"index" json:"type"`
	Tick       uint64    `gorm:"index" json:"tick"`
	PoolID     *uint64   `gorm:"index" json:"poolId,omitempty"`
	Account    string    `gorm:"index" json:"account,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	Attributes string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// EventFilter narrows an event history query. Zero values match everything.
type EventFilter struct {
	Account string
	PoolID  *uint64
	Type    string
	After   uint64
	Limit   int
}

const maxEventPage = 500

// Indexer stores every committed event in a SQL database.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger

	mu  sync.Mutex
	seq uint64
}

// OpenIndexer connects to the configured database and migrates the schema.
func OpenIndexer(cfg config.IndexerConfig, log *slog.Logger) (*Indexer, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.IndexerDriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case config.IndexerDriverSQLite, "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("staked: unsupported indexer driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open indexer: %w", err)
	}
	return NewIndexer(db, log)
}

// NewIndexer wraps an open gorm handle.
func NewIndexer(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("migrate indexer: %w", err)
	}
	var last EventRecord
	idx := &Indexer{db: db, logger: log}
	if err := db.Order("seq desc").Limit(1).Find(&last).Error; err != nil {
		return nil, err
	}
	idx.seq = last.Seq
	return idx, nil
}

// Emit implements events.Emitter. Storage failures are logged and counted;
// they never affect the ledger.
func (i *Indexer) Emit(ev events.Event) {
	if i == nil || ev == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	record, err := i.record(ev, i.seq+1)
	if err == nil {
		err = i.db.Create(record).Error
	}
	if err != nil {
		i.logger.Error("index event failed", "type", ev.EventType(), "error", err)
		observability.Events().RecordDropped("indexer")
		return
	}
	i.seq = record.Seq
}

func (i *Indexer) record(ev events.Event, seq uint64) (*EventRecord, error) {
	payload := ev.Event()
	attrs, err := json.Marshal(payload.Attributes)
	if err != nil {
		return nil, err
	}
	record := &EventRecord{
		ID:         uuid.New(),
		Seq:        seq,
		Type:       payload.Type,
		Tick:       payload.Height,
		Account:    payload.Attribute("account"),
		Amount:     payload.Attribute("amount"),
		Attributes: string(attrs),
	}
	if raw := payload.Attribute("poolId"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			record.PoolID = &id
		}
	}
	return record, nil
}

// Query returns matching events ordered by sequence.
func (i *Indexer) Query(filter EventFilter) ([]EventRecord, error) {
	q := i.db.Model(&EventRecord{}).Where("seq > ?", filter.After)
	if filter.Account != "" {
		q = q.Where("account = ?", filter.Account)
	}
	if filter.PoolID != nil {
		q = q.Where("pool_id = ?", *filter.PoolID)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	limit := filter.Limit
	if limit <= 0 || limit > maxEventPage {
		limit = maxEventPage
	}
	var out []EventRecord
	if err := q.Order("seq asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DecodedAttributes returns the full attribute map of the record.
func (r EventRecord) DecodedAttributes() map[string]string {
	out := map[string]string{}
	_ = json.Unmarshal([]byte(r.Attributes), &out)
	return out
}

// Close releases the database connection.
func (i *Indexer) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
