// Package archive keeps a record of finished races in Postgres. Live rooms
// never read from it.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/skio-race/internal/metrics"
)

var ErrClosed = errors.New("archive closed")

// Race is what a room hands over when a race reaches its result screen.
type Race struct {
	RoomCode        string
	MapSeed         int64
	LegSeed         int64
	CheckpointCount int
	StartedAt       int64
	FinishedAt      int64
	Results         []Result
}

type Result struct {
	PlayerID   string
	Name       string
	Color      string
	Rank       int
	FinishedMs int64
	Withdrawn  bool
	Splits     []int64
}

// Recorder accepts finished races without blocking the caller.
type Recorder interface {
	Enqueue(Race) bool
}

// Nop drops everything; used when no database is configured.
type Nop struct{}

func (Nop) Enqueue(Race) bool { return true }

type RaceRecord struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey"`
	RoomCode        string         `gorm:"index;not null"`
	MapSeed         int64          `gorm:"not null"`
	LegSeed         int64          `gorm:"not null"`
	CheckpointCount int            `gorm:"not null"`
	StartedAt       time.Time      `gorm:"not null"`
	FinishedAt      time.Time      `gorm:"not null"`
	Results         []ResultRecord `gorm:"foreignKey:RaceID;constraint:OnDelete:CASCADE"`
}

type ResultRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	RaceID     uuid.UUID `gorm:"type:uuid;index;not null"`
	PlayerID   string    `gorm:"not null"`
	Name       string    `gorm:"not null"`
	Color      string
	Rank       int `gorm:"not null"`
	FinishedMs *int64
	Withdrawn  bool    `gorm:"not null;default:false"`
	Splits     []int64 `gorm:"serializer:json"`
}

func toRecord(r Race) RaceRecord {
	rec := RaceRecord{
		ID:              uuid.New(),
		RoomCode:        r.RoomCode,
		MapSeed:         r.MapSeed,
		LegSeed:         r.LegSeed,
		CheckpointCount: r.CheckpointCount,
		StartedAt:       time.UnixMilli(r.StartedAt).UTC(),
		FinishedAt:      time.UnixMilli(r.FinishedAt).UTC(),
	}
	for _, res := range r.Results {
		row := ResultRecord{
			ID:        uuid.New(),
			RaceID:    rec.ID,
			PlayerID:  res.PlayerID,
			Name:      res.Name,
			Color:     res.Color,
			Rank:      res.Rank,
			Withdrawn: res.Withdrawn,
			Splits:    res.Splits,
		}
		if !res.Withdrawn {
			ms := res.FinishedMs
			row.FinishedMs = &ms
		}
		rec.Results = append(rec.Results, row)
	}
	return rec
}

// Open connects to Postgres and migrates the archive tables.
func Open(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&RaceRecord{}, &ResultRecord{}); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return db, nil
}

// Writer queues races and stores them from a single goroutine.
type Writer struct {
	queue   chan Race
	save    func(ctx context.Context, rec *RaceRecord) error
	log     *zap.Logger
	metrics *metrics.Registry
}

func NewWriter(db *gorm.DB, log *zap.Logger, m *metrics.Registry, size int) *Writer {
	save := func(ctx context.Context, rec *RaceRecord) error {
		return db.WithContext(ctx).Create(rec).Error
	}
	return newWriter(save, log, m, size)
}

func newWriter(save func(context.Context, *RaceRecord) error, log *zap.Logger, m *metrics.Registry, size int) *Writer {
	if size <= 0 {
		size = 64
	}
	return &Writer{queue: make(chan Race, size), save: save, log: log, metrics: m}
}

func (w *Writer) Enqueue(r Race) bool {
	select {
	case w.queue <- r:
		return true
	default:
		w.metrics.IncArchiveDropped()
		w.log.Warn("archive queue full, dropping race", zap.String("room", r.RoomCode))
		return false
	}
}

// Run stores queued races until ctx is cancelled, then flushes what is left
// with a short deadline.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case r := <-w.queue:
			w.store(ctx, r)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			for {
				select {
				case r := <-w.queue:
					w.store(flushCtx, r)
				default:
					return nil
				}
			}
		}
	}
}

func (w *Writer) store(ctx context.Context, r Race) {
	rec := toRecord(r)
	if err := w.save(ctx, &rec); err != nil {
		w.log.Error("archive race", zap.String("room", r.RoomCode), zap.Error(err))
		return
	}
	w.log.Debug("archived race", zap.String("room", r.RoomCode), zap.String("id", rec.ID.String()), zap.Int("results", len(rec.Results)))
}
