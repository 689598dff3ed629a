package store

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Workflow step names, in the order a company moves through them.
const (
	StepNDA  = "NDA"
	StepMOM  = "MOM"
	StepJIK  = "JIK"
	StepDone = "DONE"
)

const (
	StatusOnProgress = "On Progress"
	StatusDone       = "Done"
)

// JIK approver buckets.
const (
	ApproverInisiator          = "Inisiator"
	ApproverPemeriksa          = "Pemeriksa"
	ApproverPemberiPersetujuan = "Pemberi Persetujuan"
)

type Company struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Step struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"type:varchar(32);uniqueIndex;not null" json:"name"`
	SortOrder int    `json:"sort_order"`
}

type Status struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"type:varchar(32);uniqueIndex;not null" json:"name"`
}

// Progress ties a company to its current workflow step.
type Progress struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CompanyID uint      `gorm:"not null" json:"company_id"`
	StepID    uint      `gorm:"not null" json:"step_id"`
	StatusID  uint      `gorm:"not null" json:"status_id"`
	Company   Company   `json:"company"`
	Step      Step      `json:"step"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document is the registered NDA file of a progress.
type Document struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProgressID uint      `gorm:"not null" json:"progress_id"`
	FileURL    string    `gorm:"type:text;not null" json:"file_url"`
	Progress   *Progress `json:"progress,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Mom struct {
	ID                 uint                `gorm:"primaryKey" json:"id"`
	Title              string              `gorm:"type:varchar(255);not null" json:"title"`
	CompanyID          uint                `gorm:"not null" json:"company_id"`
	Company            *Company            `json:"company,omitempty"`
	ProgressID         *uint               `json:"progress_id"`
	Date               *time.Time          `gorm:"type:date" json:"date"`
	Time               string              `gorm:"type:varchar(32)" json:"time"`
	Venue              string              `gorm:"type:varchar(255)" json:"venue"`
	CountAttendees     int                 `json:"count_attendees"`
	Content            datatypes.JSON      `json:"content"`
	IsFinish           bool                `json:"is_finish"`
	Approvers          []Approver          `gorm:"foreignKey:MomID" json:"approvers"`
	NextActions        []NextAction        `gorm:"foreignKey:MomID" json:"next_actions"`
	AttachmentSections []AttachmentSection `gorm:"foreignKey:MomID" json:"attachment_sections"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	DeletedAt          gorm.DeletedAt      `gorm:"index" json:"deleted_at,omitempty"`
}

// Approver belongs to exactly one of a Mom or a Jik.
type Approver struct {
	ID    uint    `gorm:"primaryKey" json:"id"`
	Name  string  `gorm:"type:varchar(255);not null" json:"name"`
	Type  *string `gorm:"type:varchar(64)" json:"type"`
	Email *string `gorm:"type:varchar(255)" json:"email"`
	MomID *uint   `json:"mom_id,omitempty"`
	JikID *uint   `json:"jik_id,omitempty"`
}

type NextAction struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Action string `gorm:"type:text;not null" json:"action"`
	Target string `gorm:"type:varchar(255)" json:"target"`
	PIC    string `gorm:"column:pic;type:varchar(255)" json:"pic"`
	MomID  uint   `gorm:"not null" json:"mom_id"`
}

type AttachmentSection struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	SectionName string `gorm:"type:varchar(255);not null" json:"section_name"`
	MomID       uint   `gorm:"not null" json:"mom_id"`
	Files       []File `gorm:"foreignKey:AttachmentSectionID" json:"files"`
}

// File is an uploaded object referenced by an attachment section.
type File struct {
	ID                  uint   `gorm:"primaryKey" json:"id"`
	URL                 string `gorm:"type:text;not null" json:"url"`
	Name                string `gorm:"type:varchar(255)" json:"name"`
	ObjectKey           string `gorm:"type:text" json:"object_key"`
	MimeType            string `gorm:"type:varchar(128)" json:"mime_type"`
	Size                int64  `json:"size"`
	AttachmentSectionID uint   `gorm:"not null" json:"attachment_section_id"`
}

type Jik struct {
	ID                    uint            `gorm:"primaryKey" json:"id"`
	Title                 string          `gorm:"type:varchar(255);not null" json:"title"`
	CompanyID             uint            `gorm:"not null" json:"company_id"`
	Company               *Company        `json:"company,omitempty"`
	ProgressID            *uint           `json:"progress_id"`
	UnitName              string          `gorm:"type:varchar(255)" json:"unit_name"`
	InitiativePartnership string          `gorm:"type:text" json:"initiative_partnership"`
	InvestValue           decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"invest_value"`
	ContractDurationYears int             `json:"contract_duration_years"`
	Content               datatypes.JSON  `json:"content"`
	IsFinish              bool            `json:"is_finish"`
	Approvers             []Approver      `gorm:"foreignKey:JikID" json:"approvers"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// CompanyName is safe on rows loaded without their company.
func (m Mom) CompanyName() string {
	if m.Company == nil {
		return ""
	}
	return m.Company.Name
}

func (j Jik) CompanyName() string {
	if j.Company == nil {
		return ""
	}
	return j.Company.Name
}

func (Company) TableName() string           { return "companies" }
func (Step) TableName() string              { return "steps" }
func (Status) TableName() string            { return "statuses" }
func (Progress) TableName() string          { return "progresses" }
func (Document) TableName() string          { return "documents" }
func (Mom) TableName() string               { return "moms" }
func (Approver) TableName() string          { return "approvers" }
func (NextAction) TableName() string        { return "next_actions" }
func (AttachmentSection) TableName() string { return "attachment_sections" }
func (File) TableName() string              { return "files" }
func (Jik) TableName() string               { return "jiks" }
