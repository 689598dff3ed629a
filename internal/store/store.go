package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a requested row is absent or soft-deleted.
var ErrNotFound = gorm.ErrRecordNotFound

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// IsForeignKeyViolation reports whether err is a PostgreSQL 23503 error,
// i.e. an insert referenced a row that does not exist.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func (s *GormStore) ListCompanies(ctx context.Context) ([]Company, error) {
	var companies []Company
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&companies).Error; err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	return companies, nil
}

func (s *GormStore) CreateCompany(ctx context.Context, name string) (Company, error) {
	company := Company{Name: name}
	if err := s.db.WithContext(ctx).Create(&company).Error; err != nil {
		return Company{}, fmt.Errorf("create company: %w", err)
	}
	return company, nil
}

func (s *GormStore) GetCompany(ctx context.Context, id uint) (Company, error) {
	var company Company
	if err := s.db.WithContext(ctx).First(&company, id).Error; err != nil {
		return Company{}, err
	}
	return company, nil
}

// RegisterNDA creates a Progress at step NDA and its Document in one
// transaction. ErrNotFound is returned when the company does not exist.
func (s *GormStore) RegisterNDA(ctx context.Context, companyID uint, fileURL string) (Progress, Document, error) {
	var progress Progress
	var document Document

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var company Company
		if err := tx.First(&company, companyID).Error; err != nil {
			return err
		}

		stepID, statusID, err := lookupStage(tx, StepNDA, StatusOnProgress)
		if err != nil {
			return err
		}

		progress = Progress{CompanyID: company.ID, StepID: stepID, StatusID: statusID}
		if err := tx.Omit(clause.Associations).Create(&progress).Error; err != nil {
			return fmt.Errorf("create progress: %w", err)
		}

		document = Document{ProgressID: progress.ID, FileURL: fileURL}
		if err := tx.Omit(clause.Associations).Create(&document).Error; err != nil {
			return fmt.Errorf("create document: %w", err)
		}

		return tx.Preload("Company").Preload("Step").Preload("Status").First(&progress, progress.ID).Error
	})
	if err != nil {
		return Progress{}, Document{}, err
	}
	return progress, document, nil
}

// ListProgressByStep returns every progress currently at the named step.
func (s *GormStore) ListProgressByStep(ctx context.Context, step string) ([]Progress, error) {
	var rows []Progress
	err := s.db.WithContext(ctx).
		Joins("Step").
		Preload("Company").
		Preload("Status").
		Where(`"Step"."name" = ?`, step).
		Order("progresses.created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list progress at %s: %w", step, err)
	}
	return rows, nil
}

// lookupStage resolves seeded step and status names to their ids.
func lookupStage(tx *gorm.DB, stepName, statusName string) (uint, uint, error) {
	var step Step
	if err := tx.Where("name = ?", stepName).First(&step).Error; err != nil {
		return 0, 0, fmt.Errorf("lookup step %s: %w", stepName, err)
	}
	var status Status
	if err := tx.Where("name = ?", statusName).First(&status).Error; err != nil {
		return 0, 0, fmt.Errorf("lookup status %s: %w", statusName, err)
	}
	return step.ID, status.ID, nil
}

// advanceProgress moves a finished document's progress to the next stage.
// Documents created without a progress are left alone.
func advanceProgress(tx *gorm.DB, progressID *uint, stepName, statusName string) error {
	if progressID == nil {
		return nil
	}
	stepID, statusID, err := lookupStage(tx, stepName, statusName)
	if err != nil {
		return err
	}
	err = tx.Model(&Progress{}).
		Where("id = ?", *progressID).
		Updates(map[string]any{"step_id": stepID, "status_id": statusID}).Error
	if err != nil {
		return fmt.Errorf("advance progress %d: %w", *progressID, err)
	}
	return nil
}
