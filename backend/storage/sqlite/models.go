package sqlite

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
)

type UserModel struct {
	ID           int64  `gorm:"primaryKey"`
	Username     string `gorm:"not null;uniqueIndex"`
	Email        string
	FullName     string
	PasswordHash string
	Role         string `gorm:"not null;default:'user'"`
	IsActive     bool   `gorm:"not null;default:true"`
	CreatedAt    time.Time
}

func (UserModel) TableName() string { return "users" }

type ContractModel struct {
	ID               int64           `gorm:"primaryKey"`
	ContractNumber   string          `gorm:"not null;uniqueIndex"`
	ClientName       string          `gorm:"not null"`
	ClientPhone      string
	ClientEmail      string
	PropertyAddress  string          `gorm:"not null"`
	PropertyType     string
	RentalAmount     decimal.Decimal `gorm:"type:text"`
	DepositAmount    decimal.Decimal `gorm:"type:text"`
	StartDate        string          `gorm:"not null"`
	EndDate          string          `gorm:"not null;index"`
	Status           string          `gorm:"not null;index"`
	ContractFilePath string
	CreatedBy        int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (ContractModel) TableName() string { return "contracts" }

type DocumentModel struct {
	ID          int64  `gorm:"primaryKey"`
	Title       string `gorm:"not null"`
	Description string
	ObjectName  string
	FileType    string
	FileSize    int64
	ContractID  *int64
	UploadedBy  int64 `gorm:"not null"`
	Tags        string
	ExpiryDate  *string `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (DocumentModel) TableName() string { return "documents" }

type NotificationModel struct {
	ID                int64  `gorm:"primaryKey"`
	UserID            int64  `gorm:"not null;index"`
	Title             string `gorm:"not null"`
	Message           string `gorm:"not null"`
	Type              string `gorm:"not null"`
	RelatedContractID *int64
	RelatedDocumentID *int64
	IsRead            bool `gorm:"not null;default:false"`
	CreatedAt         time.Time
}

func (NotificationModel) TableName() string { return "notifications" }

// Timestamps are stored in UTC at microsecond precision so that text
// comparison in SQL orders them correctly.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func dateString(t time.Time) string {
	return t.Format(model.DateLayout)
}

func parseDate(s string) time.Time {
	t, _ := model.ParseDate(s)
	return t
}

func userFromModel(m UserModel) model.User {
	return model.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		FullName:     m.FullName,
		PasswordHash: m.PasswordHash,
		Role:         m.Role,
		Active:       m.IsActive,
		CreatedAt:    m.CreatedAt,
	}
}

func userToModel(u *model.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		FullName:     u.FullName,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		IsActive:     u.Active,
		CreatedAt:    dbTime(u.CreatedAt),
	}
}

func contractFromModel(m ContractModel) model.Contract {
	return model.Contract{
		ID:              m.ID,
		Number:          m.ContractNumber,
		ClientName:      m.ClientName,
		ClientPhone:     m.ClientPhone,
		ClientEmail:     m.ClientEmail,
		PropertyAddress: m.PropertyAddress,
		PropertyType:    m.PropertyType,
		RentalAmount:    m.RentalAmount,
		DepositAmount:   m.DepositAmount,
		StartDate:       parseDate(m.StartDate),
		EndDate:         parseDate(m.EndDate),
		Status:          model.ContractStatus(m.Status),
		FilePath:        m.ContractFilePath,
		CreatedBy:       m.CreatedBy,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func contractToModel(c *model.Contract) ContractModel {
	return ContractModel{
		ID:               c.ID,
		ContractNumber:   c.Number,
		ClientName:       c.ClientName,
		ClientPhone:      c.ClientPhone,
		ClientEmail:      c.ClientEmail,
		PropertyAddress:  c.PropertyAddress,
		PropertyType:     c.PropertyType,
		RentalAmount:     c.RentalAmount,
		DepositAmount:    c.DepositAmount,
		StartDate:        dateString(c.StartDate),
		EndDate:          dateString(c.EndDate),
		Status:           string(c.Status),
		ContractFilePath: c.FilePath,
		CreatedBy:        c.CreatedBy,
		CreatedAt:        dbTime(c.CreatedAt),
		UpdatedAt:        dbTime(c.UpdatedAt),
	}
}

func documentFromModel(m DocumentModel) model.Document {
	d := model.Document{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		ObjectName:  m.ObjectName,
		FileType:    m.FileType,
		FileSize:    m.FileSize,
		ContractID:  m.ContractID,
		UploadedBy:  m.UploadedBy,
		Tags:        model.ParseTags(m.Tags),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.ExpiryDate != nil {
		exp := parseDate(*m.ExpiryDate)
		d.ExpiryDate = &exp
	}
	return d
}

func documentToModel(d *model.Document) DocumentModel {
	m := DocumentModel{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		ObjectName:  d.ObjectName,
		FileType:    d.FileType,
		FileSize:    d.FileSize,
		ContractID:  d.ContractID,
		UploadedBy:  d.UploadedBy,
		Tags:        strings.Join(d.Tags, ","),
		CreatedAt:   dbTime(d.CreatedAt),
		UpdatedAt:   dbTime(d.UpdatedAt),
	}
	if d.ExpiryDate != nil {
		exp := dateString(*d.ExpiryDate)
		m.ExpiryDate = &exp
	}
	return m
}

func notificationFromModel(m NotificationModel) model.Notification {
	return model.Notification{
		ID:                m.ID,
		UserID:            m.UserID,
		Title:             m.Title,
		Message:           m.Message,
		Type:              m.Type,
		RelatedContractID: m.RelatedContractID,
		RelatedDocumentID: m.RelatedDocumentID,
		Read:              m.IsRead,
		CreatedAt:         m.CreatedAt,
	}
}

func notificationToModel(n *model.Notification) NotificationModel {
	return NotificationModel{
		ID:                n.ID,
		UserID:            n.UserID,
		Title:             n.Title,
		Message:           n.Message,
		Type:              n.Type,
		RelatedContractID: n.RelatedContractID,
		RelatedDocumentID: n.RelatedDocumentID,
		IsRead:            n.Read,
		CreatedAt:         dbTime(n.CreatedAt),
	}
}
