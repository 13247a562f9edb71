package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/circlematch/internal/domain/model"
	"github.com/okian/circlematch/pkg/logger"
	"github.com/okian/circlematch/pkg/metrics"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// GormStore implements Store on a relational database.
type GormStore struct {
	db  *gorm.DB
	log logger.Logger
}

// Open connects to the database named by driver and dsn. The memory driver
// returns a MemoryStore.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (Store, error) {
	if driver == DriverMemory {
		return NewMemoryStore(opts...), nil
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: unknown database driver %q", ErrInvalidInput, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrBackend, driver, err)
	}
	return NewGormStore(ctx, db, opts...)
}

// NewGormStore wraps an open connection.
func NewGormStore(ctx context.Context, db *gorm.DB, opts ...Option) (*GormStore, error) {
	cfg := newSettings(opts)
	s := &GormStore{db: db, log: cfg.logger}
	if cfg.autoMigrate {
		if err := db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
			return nil, fmt.Errorf("%w: migrate: %w", ErrBackend, err)
		}
		s.log.Info(ctx, "schema migrated")
	}
	return s, nil
}

// observe records latency and maps driver errors for op.
func (s *GormStore) observe(ctx context.Context, op string, start time.Time, err error) error {
	metrics.RecordRepositoryQuery(op, float64(time.Since(start).Milliseconds()))
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	metrics.RecordRepositoryError(op)
	s.log.Error(ctx, "query failed", logger.String("op", op), logger.Error(err))
	return fmt.Errorf("%w: %s: %w", ErrBackend, op, err)
}

func (s *GormStore) Events(ctx context.Context) ([]model.Record, error) {
	start := time.Now()
	var rows []eventRow
	err := s.db.WithContext(ctx).Order("created_at, id").Find(&rows).Error
	if err := s.observe(ctx, "events", start, err); err != nil {
		return nil, err
	}
	return eventRecords(rows), nil
}

func (s *GormStore) CircleEvents(ctx context.Context, circleID string) ([]model.Record, error) {
	start := time.Now()
	var rows []eventRow
	err := s.db.WithContext(ctx).
		Where("circle_id = ?", circleID).
		Order("created_at, id").
		Find(&rows).Error
	if err := s.observe(ctx, "circle_events", start, err); err != nil {
		return nil, err
	}
	return eventRecords(rows), nil
}

func (s *GormStore) ExternalEvents(ctx context.Context) ([]model.Record, error) {
	start := time.Now()
	var rows []externalEventRow
	err := s.db.WithContext(ctx).Order("created_at, id").Find(&rows).Error
	if err := s.observe(ctx, "external_events", start, err); err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].record())
	}
	return out, nil
}

func (s *GormStore) UsersInCircle(ctx context.Context, circleID string) ([]model.Record, error) {
	const op = "users_in_circle"
	start := time.Now()

	var members []memberRow
	err := s.db.WithContext(ctx).
		Where("circle_id = ? AND status = ?", circleID, memberStatusJoined).
		Order("joined_at, user_id").
		Find(&members).Error
	if err != nil || len(members) == 0 {
		return []model.Record{}, s.observe(ctx, op, start, err)
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.UserID
	}
	var profiles []profileRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, s.observe(ctx, op, start, err)
	}
	attrs, err := s.activeAttributes(ctx, ids)
	if err != nil {
		return nil, s.observe(ctx, op, start, err)
	}

	byID := make(map[string]*profileRow, len(profiles))
	for i := range profiles {
		byID[profiles[i].ID] = &profiles[i]
	}
	out := make([]model.Record, 0, len(members))
	for _, m := range members {
		p, ok := byID[m.UserID]
		if !ok {
			s.log.Warn(ctx, "member without profile", logger.String("user_id", m.UserID))
			continue
		}
		out = append(out, p.record(attrs[m.UserID]))
	}
	_ = s.observe(ctx, op, start, nil)
	return out, nil
}

func (s *GormStore) activeAttributes(ctx context.Context, userIDs []string) (map[string][]attributeRow, error) {
	var rows []attributeRow
	err := s.db.WithContext(ctx).
		Where("user_id IN ? AND (expires_at IS NULL OR expires_at > ?)", userIDs, time.Now().UTC()).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string][]attributeRow, len(userIDs))
	for _, r := range rows {
		out[r.UserID] = append(out[r.UserID], r)
	}
	return out, nil
}

func (s *GormStore) Circle(ctx context.Context, id string) (model.Circle, error) {
	start := time.Now()
	var row circleRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err := s.observe(ctx, "circle", start, err); err != nil {
		return model.Circle{}, err
	}
	return row.model(), nil
}

func (s *GormStore) UserProfile(ctx context.Context, userID string) (model.Record, error) {
	const op = "user_profile"
	start := time.Now()

	var p profileRow
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&p).Error; err != nil {
		return nil, s.observe(ctx, op, start, err)
	}
	attrs, err := s.activeAttributes(ctx, []string{userID})
	if err := s.observe(ctx, op, start, err); err != nil {
		return nil, err
	}
	return p.record(attrs[userID]), nil
}

func (s *GormStore) AddAttribute(ctx context.Context, attr model.Attribute) (model.Attribute, error) {
	if err := validateAttribute(attr); err != nil {
		return model.Attribute{}, err
	}
	start := time.Now()
	row := attributeFromModel(attr)
	err := s.db.WithContext(ctx).Create(&row).Error
	if err := s.observe(ctx, "add_attribute", start, err); err != nil {
		return model.Attribute{}, err
	}
	return row.model(), nil
}

func (s *GormStore) CreateSession(ctx context.Context, sess model.Session) (model.Session, error) {
	if sess.CircleID == "" || sess.CreatedByUserID == "" {
		return model.Session{}, fmt.Errorf("%w: session needs circle and creator", ErrInvalidInput)
	}
	start := time.Now()
	row := sessionFromModel(sess)
	err := s.db.WithContext(ctx).Create(&row).Error
	if err := s.observe(ctx, "create_session", start, err); err != nil {
		return model.Session{}, err
	}
	return row.model(), nil
}

func (s *GormStore) Session(ctx context.Context, id string) (model.Session, error) {
	start := time.Now()
	var row sessionRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err := s.observe(ctx, "session", start, err); err != nil {
		return model.Session{}, err
	}
	return row.model(), nil
}

func (s *GormStore) AddRecommendation(ctx context.Context, sessionID string, rec model.Recommendation) (model.StoredRecommendation, error) {
	row, err := recommendationFromModel(sessionID, rec)
	if err != nil {
		return model.StoredRecommendation{}, fmt.Errorf("%w: recommendation for event %q origin %q", err, rec.EventID, rec.Origin)
	}
	start := time.Now()
	err = s.db.WithContext(ctx).Create(&row).Error
	if err := s.observe(ctx, "add_recommendation", start, err); err != nil {
		return model.StoredRecommendation{}, err
	}
	return row.model(), nil
}

func (s *GormStore) Recommendations(ctx context.Context, sessionID string) ([]model.StoredRecommendation, error) {
	start := time.Now()
	var rows []recommendationRow
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("score_total DESC, created_at, id").
		Find(&rows).Error
	if err := s.observe(ctx, "recommendations", start, err); err != nil {
		return nil, err
	}
	out := make([]model.StoredRecommendation, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

// Seed inserts the fixture in one transaction.
func (s *GormStore) Seed(ctx context.Context, f Fixture) error {
	rows, err := f.rows(time.Now().UTC())
	if err != nil {
		return err
	}
	start := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, batch := range []any{
			rows.circles, rows.profiles, rows.members, rows.attributes,
			rows.events, rows.externalEvents,
		} {
			if err := createBatch(tx, batch); err != nil {
				return err
			}
		}
		return nil
	})
	return s.observe(ctx, "seed", start, err)
}

// createBatch skips empty slices, which gorm rejects.
func createBatch(tx *gorm.DB, batch any) error {
	switch b := batch.(type) {
	case []circleRow:
		if len(b) == 0 {
			return nil
		}
		return tx.Create(&b).Error
	case []profileRow:
		if len(b) == 0 {
			return nil
		}
		return tx.Create(&b).Error
	case []memberRow:
		if len(b) == 0 {
			return nil
		}
		return tx.Create(&b).Error
	case []attributeRow:
		if len(b) == 0 {
			return nil
		}
		return tx.Create(&b).Error
	case []eventRow:
		if len(b) == 0 {
			return nil
		}
		return tx.Create(&b).Error
	case []externalEventRow:
		if len(b) == 0 {
			return nil
		}
		return tx.Create(&b).Error
	default:
		return fmt.Errorf("%w: unsupported batch %T", ErrInvalidInput, batch)
	}
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackend, err)
	}
	return sqlDB.Close()
}

func eventRecords(rows []eventRow) []model.Record {
	out := make([]model.Record, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].record())
	}
	return out
}
