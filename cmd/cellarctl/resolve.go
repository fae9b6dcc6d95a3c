package main

import (
	"cellarcore/internal/core"
	"cellarcore/pkg/domain"
	"context"
	"errors"
	"strings"
)

// resolveVessel accepts a vessel ID or its name.
func resolveVessel(ctx context.Context, svc *core.Service, tenantID, ref string) (domain.Vessel, error) {
	ref = strings.TrimSpace(ref)
	v, err := svc.GetVessel(ctx, tenantID, ref)
	if err == nil {
		return v, nil
	}
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		return domain.Vessel{}, err
	}
	vessels, listErr := svc.ListVessels(ctx, tenantID)
	if listErr != nil {
		return domain.Vessel{}, listErr
	}
	for _, candidate := range vessels {
		if strings.EqualFold(candidate.Name, ref) {
			return candidate, nil
		}
	}
	return domain.Vessel{}, err
}

// resolveBatch accepts a batch ID or its code.
func resolveBatch(ctx context.Context, svc *core.Service, tenantID, ref string) (domain.Batch, error) {
	ref = strings.TrimSpace(ref)
	b, err := svc.GetBatch(ctx, tenantID, ref)
	if err == nil {
		return b, nil
	}
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		return domain.Batch{}, err
	}
	batches, listErr := svc.ListBatches(ctx, tenantID)
	if listErr != nil {
		return domain.Batch{}, listErr
	}
	for _, candidate := range batches {
		if candidate.Code == ref {
			return candidate, nil
		}
	}
	return domain.Batch{}, err
}

func resolveBatchIDs(ctx context.Context, svc *core.Service, tenantID string, refs []string) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		b, err := resolveBatch(ctx, svc, tenantID, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, b.ID)
	}
	return ids, nil
}

// resolveLot accepts a lot ID or its code.
func resolveLot(ctx context.Context, svc *core.Service, tenantID, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	lots, err := svc.ListLots(ctx, tenantID)
	if err != nil {
		return "", err
	}
	for _, lot := range lots {
		if lot.ID == ref || lot.Code == ref {
			return lot.ID, nil
		}
	}
	// Unknown refs pass through so the engine reports the missing lot.
	return ref, nil
}
