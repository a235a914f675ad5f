// Package access implements the Access Controller + Orphan Cleaner (C7):
// team-membership authorization and the cleanup of derived records left
// behind when ownership changes.
package access

import (
	"context"
	"fmt"
	"slices"

	"github.com/ifuryst/lol"

	"github.com/aci-labs/mcp-gateway/internal/catalog"
	"github.com/aci-labs/mcp-gateway/internal/identitystore"
)

// Controller implements C7.
type Controller struct {
	store   catalog.Store
	idstore identitystore.Store
}

func NewController(store catalog.Store, idstore identitystore.Store) *Controller {
	return &Controller{store: store, idstore: idstore}
}

// MayUse is true iff the user's teams in the configuration's organization
// intersect the configuration's AllowedTeams.
func (c *Controller) MayUse(ctx context.Context, userID string, cfg *catalog.Configuration) (bool, error) {
	userTeams, err := c.idstore.UserTeams(ctx, userID, cfg.OrganizationID)
	if err != nil {
		return false, err
	}
	return teamSetsIntersect(userTeams, cfg.AllowedTeams), nil
}

func teamSetsIntersect(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// Report summarizes a triggered cleanup for the admin log (§4.7).
type Report struct {
	AccountsDeleted int
	BundlesScrubbed int
}

// OnConfigurationAllowedTeamsChanged removes individual connected accounts
// whose owner lost access, and removes cfg.ID from any bundle whose owner
// lost access. Idempotent: re-running produces an empty Report.
func (c *Controller) OnConfigurationAllowedTeamsChanged(ctx context.Context, cfg *catalog.Configuration) (*Report, error) {
	report := &Report{}

	accounts, err := c.store.ListConnectedAccountsByConfiguration(ctx, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("access: list connected accounts: %w", err)
	}
	for _, a := range accounts {
		if a.Ownership != catalog.OwnershipIndividual || a.UserID == nil {
			continue
		}
		ok, err := c.MayUse(ctx, *a.UserID, cfg)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		if err := c.store.DeleteConnectedAccount(ctx, a.ID); err != nil {
			return nil, fmt.Errorf("access: delete orphaned account: %w", err)
		}
		report.AccountsDeleted++
	}

	bundles, err := c.store.ListBundlesReferencingConfiguration(ctx, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("access: list referencing bundles: %w", err)
	}
	for _, b := range bundles {
		ok, err := c.MayUse(ctx, b.UserID, cfg)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		if scrubConfigurationID(&b, cfg.ID) {
			if err := c.store.UpdateBundle(ctx, &b); err != nil {
				return nil, fmt.Errorf("access: scrub bundle: %w", err)
			}
			report.BundlesScrubbed++
		}
	}

	return report, nil
}

// OnConfigurationDeleted scrubs cfgID out of every bundle that references
// it. Connected accounts are assumed cascade-deleted by the
// store (DeleteConfiguration already does this).
func (c *Controller) OnConfigurationDeleted(ctx context.Context, cfgID string) (*Report, error) {
	return c.scrubBundlesReferencing(ctx, cfgID)
}

// OnUserRemovedFromTeam scrubs only bundles/accounts owned by userID.
func (c *Controller) OnUserRemovedFromTeam(ctx context.Context, userID, orgID string) (*Report, error) {
	report := &Report{}

	cfgs, err := c.store.ListConfigurationsByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("access: list org configurations: %w", err)
	}
	for _, cfg := range cfgs {
		ok, err := c.MayUse(ctx, userID, &cfg)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		account, err := c.store.GetIndividualAccount(ctx, userID, cfg.ID)
		if err == nil && account != nil {
			if err := c.store.DeleteConnectedAccount(ctx, account.ID); err != nil {
				return nil, fmt.Errorf("access: delete orphaned account: %w", err)
			}
			report.AccountsDeleted++
		}
	}

	bundles, err := c.store.ListBundlesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("access: list user bundles: %w", err)
	}
	for _, b := range bundles {
		changed := false
		for _, cfg := range cfgs {
			ok, err := c.MayUse(ctx, userID, &cfg)
			if err != nil {
				return nil, err
			}
			if !ok && scrubConfigurationID(&b, cfg.ID) {
				changed = true
			}
		}
		if changed {
			if err := c.store.UpdateBundle(ctx, &b); err != nil {
				return nil, fmt.Errorf("access: scrub bundle: %w", err)
			}
			report.BundlesScrubbed++
		}
	}

	return report, nil
}

// OnServerDeleted scrubs every now-nonexistent configuration id of the
// deleted server out of every bundle that references it; orgID does not
// narrow the scan. Configurations/accounts/tools are
// assumed cascade-deleted by the store (DeleteServer already does this).
func (c *Controller) OnServerDeleted(ctx context.Context, orgID string, deletedConfigurationIDs []string) (*Report, error) {
	report := &Report{}
	for _, id := range deletedConfigurationIDs {
		r, err := c.scrubBundlesReferencing(ctx, id)
		if err != nil {
			return nil, err
		}
		report.BundlesScrubbed += r.BundlesScrubbed
	}
	return report, nil
}

func (c *Controller) scrubBundlesReferencing(ctx context.Context, cfgID string) (*Report, error) {
	report := &Report{}
	bundles, err := c.store.ListBundlesReferencingConfiguration(ctx, cfgID)
	if err != nil {
		return nil, fmt.Errorf("access: list referencing bundles: %w", err)
	}
	for _, b := range bundles {
		if scrubConfigurationID(&b, cfgID) {
			if err := c.store.UpdateBundle(ctx, &b); err != nil {
				return nil, fmt.Errorf("access: scrub bundle: %w", err)
			}
			report.BundlesScrubbed++
		}
	}
	return report, nil
}

// scrubConfigurationID removes id from b's ordered configuration list in
// place, preserving order and deduplicating. Returns whether it changed
// anything, so callers can skip a no-op UpdateBundle (idempotence, §4.7).
func scrubConfigurationID(b *catalog.Bundle, id string) bool {
	filtered := make([]string, 0, len(b.MCPServerConfigurationIDs))
	for _, existing := range b.MCPServerConfigurationIDs {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	out := lol.UniqSlice(filtered)
	if slices.Equal(out, b.MCPServerConfigurationIDs) {
		return false
	}
	b.MCPServerConfigurationIDs = out
	return true
}
