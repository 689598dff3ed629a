package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MomPatch is a partial update. Fields holds column values keyed by column
// name. A non-nil collection pointer replaces that whole child set; nil
// leaves it untouched.
type MomPatch struct {
	Fields             map[string]any
	Approvers          *[]Approver
	NextActions        *[]NextAction
	AttachmentSections *[]AttachmentSection
}

func byID(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

func momAggregate(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Company").
		Preload("Approvers", byID).
		Preload("NextActions", byID).
		Preload("AttachmentSections", byID).
		Preload("AttachmentSections.Files", byID)
}

// CreateMom inserts a draft with its child collections. A mom created
// without a progress is linked to the company's latest one, if any.
func (s *GormStore) CreateMom(ctx context.Context, mom Mom) (Mom, error) {
	var id uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if mom.ProgressID == nil {
			mom.ProgressID = latestProgressID(tx, mom.CompanyID)
		}
		row := mom
		row.ID = 0
		row.Approvers, row.NextActions, row.AttachmentSections = nil, nil, nil
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return fmt.Errorf("create mom: %w", err)
		}
		id = row.ID

		return writeMomChildren(tx, id, MomPatch{
			Approvers:          &mom.Approvers,
			NextActions:        &mom.NextActions,
			AttachmentSections: &mom.AttachmentSections,
		})
	})
	if err != nil {
		return Mom{}, err
	}
	return s.GetMom(ctx, id)
}

func (s *GormStore) GetMom(ctx context.Context, id uint) (Mom, error) {
	var mom Mom
	if err := momAggregate(s.db.WithContext(ctx)).First(&mom, id).Error; err != nil {
		return Mom{}, err
	}
	return mom, nil
}

// GetMomUnscoped loads a mom whether or not it was soft-deleted.
func (s *GormStore) GetMomUnscoped(ctx context.Context, id uint) (Mom, error) {
	var mom Mom
	if err := s.db.WithContext(ctx).Unscoped().First(&mom, id).Error; err != nil {
		return Mom{}, err
	}
	return mom, nil
}

func (s *GormStore) ListMoms(ctx context.Context) ([]Mom, error) {
	var moms []Mom
	err := s.db.WithContext(ctx).Preload("Company").Order("updated_at DESC").Find(&moms).Error
	if err != nil {
		return nil, fmt.Errorf("list moms: %w", err)
	}
	return moms, nil
}

// ListMomsByID keeps the order of ids, which is the search ranking.
func (s *GormStore) ListMomsByID(ctx context.Context, ids []uint) ([]Mom, error) {
	if len(ids) == 0 {
		return []Mom{}, nil
	}
	var moms []Mom
	if err := s.db.WithContext(ctx).Preload("Company").Where("id IN ?", ids).Find(&moms).Error; err != nil {
		return nil, fmt.Errorf("list moms by id: %w", err)
	}
	return orderByIDs(moms, ids, func(m Mom) uint { return m.ID }), nil
}

// UpdateMom applies patch in one transaction. Setting is_finish on an
// unfinished mom moves its progress to the JIK step; finished reports
// whether this call made that transition while holding the row lock.
func (s *GormStore) UpdateMom(ctx context.Context, id uint, patch MomPatch) (mom Mom, finished bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		finished = false
		var current Mom
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, id).Error; err != nil {
			return err
		}

		if len(patch.Fields) > 0 {
			if err := tx.Model(&current).Updates(patch.Fields).Error; err != nil {
				return fmt.Errorf("update mom %d: %w", id, err)
			}
		}

		if err := writeMomChildren(tx, id, patch); err != nil {
			return err
		}

		if finishing(patch.Fields) && !current.IsFinish {
			finished = true
			return advanceProgress(tx, current.ProgressID, StepJIK, StatusOnProgress)
		}
		return nil
	})
	if err != nil {
		return Mom{}, false, err
	}
	mom, err = s.GetMom(ctx, id)
	return mom, finished, err
}

// SoftDeleteMom stamps deleted_at. Children are retained.
func (s *GormStore) SoftDeleteMom(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&Mom{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete mom %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func writeMomChildren(tx *gorm.DB, id uint, patch MomPatch) error {
	if patch.Approvers != nil {
		if err := replaceApprovers(tx, "mom_id", id, *patch.Approvers); err != nil {
			return err
		}
	}
	if patch.NextActions != nil {
		if err := replaceNextActions(tx, id, *patch.NextActions); err != nil {
			return err
		}
	}
	if patch.AttachmentSections != nil {
		if err := replaceAttachmentSections(tx, id, *patch.AttachmentSections); err != nil {
			return err
		}
	}
	return nil
}

func finishing(fields map[string]any) bool {
	v, ok := fields["is_finish"].(bool)
	return ok && v
}

func latestProgressID(tx *gorm.DB, companyID uint) *uint {
	var progress Progress
	err := tx.Where("company_id = ?", companyID).Order("created_at DESC").Limit(1).Find(&progress).Error
	if err != nil || progress.ID == 0 {
		return nil
	}
	return &progress.ID
}

func orderByIDs[T any](rows []T, ids []uint, key func(T) uint) []T {
	index := make(map[uint]T, len(rows))
	for _, row := range rows {
		index[key(row)] = row
	}
	ordered := make([]T, 0, len(rows))
	for _, id := range ids {
		if row, ok := index[id]; ok {
			ordered = append(ordered, row)
		}
	}
	return ordered
}
