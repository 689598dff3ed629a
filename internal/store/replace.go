package store

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// replaceSet deletes every row of T owned by parentID and inserts rows in
// their place. bind resets each row's identity and points it at the parent.
// It must run inside a transaction so a failed insert restores the old set.
func replaceSet[T any](tx *gorm.DB, fk string, parentID uint, rows []T, bind func(*T)) error {
	var model T
	if err := tx.Where(fk+" = ?", parentID).Delete(&model).Error; err != nil {
		return fmt.Errorf("delete %T rows: %w", model, err)
	}
	if len(rows) == 0 {
		return nil
	}

	fresh := make([]T, len(rows))
	copy(fresh, rows)
	for i := range fresh {
		bind(&fresh[i])
	}
	if err := tx.Omit(clause.Associations).Create(&fresh).Error; err != nil {
		return fmt.Errorf("insert %T rows: %w", model, err)
	}
	return nil
}

func replaceApprovers(tx *gorm.DB, fk string, parentID uint, rows []Approver) error {
	return replaceSet(tx, fk, parentID, rows, func(a *Approver) {
		id := parentID
		a.ID = 0
		a.MomID, a.JikID = nil, nil
		if fk == "mom_id" {
			a.MomID = &id
		} else {
			a.JikID = &id
		}
	})
}

func replaceNextActions(tx *gorm.DB, momID uint, rows []NextAction) error {
	return replaceSet(tx, "mom_id", momID, rows, func(n *NextAction) {
		n.ID = 0
		n.MomID = momID
	})
}

// replaceAttachmentSections swaps a mom's sections and every file under them.
func replaceAttachmentSections(tx *gorm.DB, momID uint, sections []AttachmentSection) error {
	owned := tx.Model(&AttachmentSection{}).Select("id").Where("mom_id = ?", momID)
	if err := tx.Where("attachment_section_id IN (?)", owned).Delete(&File{}).Error; err != nil {
		return fmt.Errorf("delete attachment files: %w", err)
	}
	if err := tx.Where("mom_id = ?", momID).Delete(&AttachmentSection{}).Error; err != nil {
		return fmt.Errorf("delete attachment sections: %w", err)
	}

	for _, section := range sections {
		row := AttachmentSection{SectionName: section.SectionName, MomID: momID}
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return fmt.Errorf("insert attachment section: %w", err)
		}
		err := replaceSet(tx, "attachment_section_id", row.ID, section.Files, func(f *File) {
			f.ID = 0
			f.AttachmentSectionID = row.ID
		})
		if err != nil {
			return err
		}
	}
	return nil
}
