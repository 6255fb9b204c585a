package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/palace-sh/palace/pkg/fault"
)

// TenantProfile carries the per-tenant signals the similarity engine scores
// on. The surrounding application feeds it through UpsertProfile; palace
// never derives it from another tenant's memories.
type TenantProfile struct {
	TenantID    string    `json:"tenant_id"`
	Platforms   []string  `json:"platforms"`
	Niche       string    `json:"niche"`
	Approvals   int       `json:"approvals"`
	Submissions int       `json:"submissions"`
	Velocity    float64   `json:"velocity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ApprovalRate returns approvals/submissions, or 0 with ok=false when the
// sample is too small to be meaningful (fewer than 3 submissions).
func (p *TenantProfile) ApprovalRate() (float64, bool) {
	if p.Submissions < 3 {
		return 0, false
	}
	return float64(p.Approvals) / float64(p.Submissions), true
}

// UpsertProfile creates or replaces a tenant profile.
func (s *Store) UpsertProfile(ctx context.Context, profile *TenantProfile) error {
	if strings.TrimSpace(profile.TenantID) == "" {
		return fault.New(fault.KindValidation, "store.upsert_profile", "tenant id is required")
	}
	if profile.Platforms == nil {
		profile.Platforms = []string{}
	}

	platformsJSON, err := json.Marshal(profile.Platforms)
	if err != nil {
		return fmt.Errorf("failed to marshal platforms: %w", err)
	}

	query := `
		INSERT INTO tenant_profiles (tenant_id, platforms_json, niche, approvals, submissions, velocity, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			platforms_json = excluded.platforms_json,
			niche = excluded.niche,
			approvals = excluded.approvals,
			submissions = excluded.submissions,
			velocity = excluded.velocity,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		profile.TenantID, platformsJSON, profile.Niche,
		profile.Approvals, profile.Submissions, profile.Velocity, s.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}

	return nil
}

// GetProfile retrieves a tenant profile.
func (s *Store) GetProfile(ctx context.Context, tenantID string) (*TenantProfile, error) {
	query := `
		SELECT tenant_id, platforms_json, niche, approvals, submissions, velocity, updated_at
		FROM tenant_profiles WHERE tenant_id = ?
	`

	profile, err := scanProfile(s.db.QueryRowContext(ctx, query, tenantID))
	if err == sql.ErrNoRows {
		return nil, fault.New(fault.KindNotFound, "store.get_profile", "profile for tenant %s not found", tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return profile, nil
}

// ListProfiles returns every tenant profile.
func (s *Store) ListProfiles(ctx context.Context) ([]TenantProfile, error) {
	query := `
		SELECT tenant_id, platforms_json, niche, approvals, submissions, velocity, updated_at
		FROM tenant_profiles ORDER BY tenant_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []TenantProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *profile)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}

	return profiles, nil
}

func scanProfile(row rowScanner) (*TenantProfile, error) {
	var profile TenantProfile
	var platformsJSON []byte

	err := row.Scan(&profile.TenantID, &platformsJSON, &profile.Niche,
		&profile.Approvals, &profile.Submissions, &profile.Velocity, &profile.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(platformsJSON) > 0 {
		if err := json.Unmarshal(platformsJSON, &profile.Platforms); err != nil {
			return nil, fmt.Errorf("failed to unmarshal platforms: %w", err)
		}
	}

	return &profile, nil
}
