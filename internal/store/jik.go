package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JikPatch mirrors MomPatch; a JIK only owns approvers.
type JikPatch struct {
	Fields    map[string]any
	Approvers *[]Approver
}

func jikAggregate(db *gorm.DB) *gorm.DB {
	return db.Preload("Company").Preload("Approvers", byID)
}

func (s *GormStore) CreateJik(ctx context.Context, jik Jik) (Jik, error) {
	var id uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if jik.ProgressID == nil {
			jik.ProgressID = latestProgressID(tx, jik.CompanyID)
		}
		row := jik
		row.ID = 0
		row.Approvers = nil
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return fmt.Errorf("create jik: %w", err)
		}
		id = row.ID
		return replaceApprovers(tx, "jik_id", id, jik.Approvers)
	})
	if err != nil {
		return Jik{}, err
	}
	return s.GetJik(ctx, id)
}

func (s *GormStore) GetJik(ctx context.Context, id uint) (Jik, error) {
	var jik Jik
	if err := jikAggregate(s.db.WithContext(ctx)).First(&jik, id).Error; err != nil {
		return Jik{}, err
	}
	return jik, nil
}

func (s *GormStore) ListJiks(ctx context.Context) ([]Jik, error) {
	var jiks []Jik
	err := s.db.WithContext(ctx).Preload("Company").Order("updated_at DESC").Find(&jiks).Error
	if err != nil {
		return nil, fmt.Errorf("list jiks: %w", err)
	}
	return jiks, nil
}

func (s *GormStore) ListJiksByID(ctx context.Context, ids []uint) ([]Jik, error) {
	if len(ids) == 0 {
		return []Jik{}, nil
	}
	var jiks []Jik
	if err := s.db.WithContext(ctx).Preload("Company").Where("id IN ?", ids).Find(&jiks).Error; err != nil {
		return nil, fmt.Errorf("list jiks by id: %w", err)
	}
	return orderByIDs(jiks, ids, func(j Jik) uint { return j.ID }), nil
}

// UpdateJik applies patch in one transaction. Finishing a JIK closes the
// workflow: its progress moves to DONE with status Done. finished is true
// only for the call that made that transition.
func (s *GormStore) UpdateJik(ctx context.Context, id uint, patch JikPatch) (jik Jik, finished bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		finished = false
		var current Jik
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, id).Error; err != nil {
			return err
		}

		if len(patch.Fields) > 0 {
			if err := tx.Model(&current).Updates(patch.Fields).Error; err != nil {
				return fmt.Errorf("update jik %d: %w", id, err)
			}
		}

		if patch.Approvers != nil {
			if err := replaceApprovers(tx, "jik_id", id, *patch.Approvers); err != nil {
				return err
			}
		}

		if finishing(patch.Fields) && !current.IsFinish {
			finished = true
			return advanceProgress(tx, current.ProgressID, StepDone, StatusDone)
		}
		return nil
	})
	if err != nil {
		return Jik{}, false, err
	}
	jik, err = s.GetJik(ctx, id)
	return jik, finished, err
}
