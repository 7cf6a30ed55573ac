package service

import (
	"context"
	"fmt"
	"time"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/pkg/logger"
)

// ScanContracts returns contracts with a status in statuses whose end date falls
// within [ref, ref+lookaheadDays]. An empty statuses list means active or signed.
// Contracts with inconsistent data are skipped with a warning.
func ScanContracts(ctx context.Context, store Store, ref time.Time, lookaheadDays int, statuses []model.ContractStatus) ([]model.Contract, error) {
	if lookaheadDays < 0 {
		return nil, fmt.Errorf("scan contracts: negative lookahead %d", lookaheadDays)
	}
	if len(statuses) == 0 {
		statuses = model.ExpiryEligibleStatuses
	}

	from, to := ref, model.AddDays(ref, lookaheadDays)
	q := ContractQuery{Statuses: statuses, EndFrom: &from, EndTo: &to}
	contracts, err := store.ListContracts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("scan contracts: %w", err)
	}

	result := make([]model.Contract, 0, len(contracts))
	for _, c := range contracts {
		if err := c.Validate(); err != nil {
			logger.Warn(ctx, "skipping contract with invalid state", "contract_id", c.ID, "error", err)
			continue
		}
		if !q.Matches(&c) {
			continue
		}
		result = append(result, c)
	}
	return result, nil
}

// ScanDocuments returns documents whose expiry date falls within
// [ref, ref+lookaheadDays]. Documents without an expiry date are never returned.
func ScanDocuments(ctx context.Context, store Store, ref time.Time, lookaheadDays int) ([]model.Document, error) {
	if lookaheadDays < 0 {
		return nil, fmt.Errorf("scan documents: negative lookahead %d", lookaheadDays)
	}

	from, to := ref, model.AddDays(ref, lookaheadDays)
	q := DocumentQuery{ExpiryFrom: &from, ExpiryTo: &to}
	documents, err := store.ListDocuments(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}

	result := make([]model.Document, 0, len(documents))
	for _, d := range documents {
		if d.ExpiryDate == nil || !q.Matches(&d) {
			continue
		}
		if err := d.Validate(); err != nil {
			logger.Warn(ctx, "skipping document with invalid state", "document_id", d.ID, "error", err)
			continue
		}
		result = append(result, d)
	}
	return result, nil
}
