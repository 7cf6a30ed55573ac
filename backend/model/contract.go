package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ContractStatus is the lifecycle status of a lease contract.
type ContractStatus string

// ContractStatus constants
const (
	StatusDraft      ContractStatus = "draft"
	StatusActive     ContractStatus = "active"
	StatusSigned     ContractStatus = "signed"
	StatusExpired    ContractStatus = "expired"
	StatusTerminated ContractStatus = "terminated"
)

// ExpiryEligibleStatuses are the statuses scanned for contract expiry.
var ExpiryEligibleStatuses = []ContractStatus{StatusActive, StatusSigned}

// Valid reports whether s is one of the known contract statuses.
func (s ContractStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusSigned, StatusExpired, StatusTerminated:
		return true
	}
	return false
}

// Contract represents a lease contract
type Contract struct {
	ID              int64           `json:"id"`
	Number          string          `json:"contract_number"`
	ClientName      string          `json:"client_name"`
	ClientPhone     string          `json:"client_phone,omitempty"`
	ClientEmail     string          `json:"client_email,omitempty"`
	PropertyAddress string          `json:"property_address"`
	PropertyType    string          `json:"property_type"`
	RentalAmount    decimal.Decimal `json:"rental_amount"`
	DepositAmount   decimal.Decimal `json:"deposit_amount"`
	StartDate       time.Time       `json:"start_date"`
	EndDate         time.Time       `json:"end_date"`
	Status          ContractStatus  `json:"status"`
	FilePath        string          `json:"contract_file_path,omitempty"`
	CreatedBy       int64           `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Validate checks the invariants a stored contract must satisfy.
func (c *Contract) Validate() error {
	if strings.TrimSpace(c.ClientName) == "" {
		return fmt.Errorf("%w: contract %d has no client name", ErrInvalidEntity, c.ID)
	}
	if strings.TrimSpace(c.PropertyAddress) == "" {
		return fmt.Errorf("%w: contract %d has no property address", ErrInvalidEntity, c.ID)
	}
	if !c.Status.Valid() {
		return fmt.Errorf("%w: contract %d has unknown status %q", ErrInvalidEntity, c.ID, c.Status)
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return fmt.Errorf("%w: contract %d is missing a term date", ErrInvalidEntity, c.ID)
	}
	if c.EndDate.Before(c.StartDate) {
		return fmt.Errorf("%w: contract %d ends before it starts", ErrInvalidEntity, c.ID)
	}
	if c.RentalAmount.IsNegative() || c.DepositAmount.IsNegative() {
		return fmt.Errorf("%w: contract %d has a negative amount", ErrInvalidEntity, c.ID)
	}
	return nil
}

// InTerm reports whether day falls within the contract term, both ends inclusive.
func (c *Contract) InTerm(day time.Time) bool {
	return !day.Before(c.StartDate) && !day.After(c.EndDate)
}

// NewContractNumber formats a contract number as KZH-YYYY-MM-XXXXXX.
func NewContractNumber(now time.Time, suffix string) string {
	suffix = strings.ToUpper(suffix)
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	return fmt.Sprintf("KZH-%d-%02d-%s", now.Year(), int(now.Month()), suffix)
}
