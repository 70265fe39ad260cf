package profile

import (
	"context"
	"testing"

	"github.com/saiset-co/sai-storefront/datasource"
	"github.com/saiset-co/sai-storefront/logger"
	"github.com/saiset-co/sai-storefront/types"
)

func newTestSource(t *testing.T, profiles []map[string]interface{}) types.DataSource {
	t.Helper()

	source, err := datasource.NewMemorySource(context.Background(), logger.NewNop(), &types.DataSourceConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("NewMemorySource failed: %v", err)
	}
	if err := source.Start(); err != nil {
		t.Fatalf("source Start failed: %v", err)
	}
	t.Cleanup(func() { _ = source.Stop() })

	if len(profiles) > 0 {
		if _, err := source.Insert(context.Background(), types.CollectionProfiles, profiles); err != nil {
			t.Fatalf("seed Insert failed: %v", err)
		}
	}

	return source
}

func newTestResolver(t *testing.T, config *types.ProfileConfig, source types.DataSource) *Resolver {
	t.Helper()

	if config == nil {
		config = &types.ProfileConfig{}
	}

	r, err := NewResolver(logger.NewNop(), config, source)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	return r
}

func TestResolve_ProfileRowIsAuthoritative(t *testing.T) {
	source := newTestSource(t, []map[string]interface{}{
		{"id": "u-1", "email": "mod@shop.test", "role": "moderator", "full_name": "Sam"},
	})
	resolver := newTestResolver(t, nil, source)

	profile, err := resolver.Resolve(context.Background(), types.Identity{ID: "u-1", Email: "mod@shop.test"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if profile.Role != types.RoleModerator {
		t.Fatalf("expected moderator role, got %s", profile.Role)
	}
	if profile.FullName != "Sam" {
		t.Fatalf("expected full name from the row, got %q", profile.FullName)
	}

	if !resolver.IsModerator() {
		t.Fatal("expected IsModerator true")
	}
	if resolver.IsAdmin() {
		t.Fatal("expected IsAdmin false for moderator")
	}
	if resolver.Phase() != ResolutionResolved {
		t.Fatalf("expected resolved phase, got %d", resolver.Phase())
	}
}

func TestResolve_UnknownRoleDemotedToUser(t *testing.T) {
	source := newTestSource(t, []map[string]interface{}{
		{"id": "u-1", "role": "superuser"},
	})
	resolver := newTestResolver(t, nil, source)

	profile, err := resolver.Resolve(context.Background(), types.Identity{ID: "u-1"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if profile.Role != types.RoleUser {
		t.Fatalf("expected unrecognized role demoted to user, got %s", profile.Role)
	}
}

func TestResolve_MissingRowFallsBackToUser(t *testing.T) {
	source := newTestSource(t, nil)
	resolver := newTestResolver(t, nil, source)

	profile, err := resolver.Resolve(context.Background(), types.Identity{ID: "u-9", Email: "nobody@shop.test"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if profile.Role != types.RoleUser {
		t.Fatalf("expected synthesized user profile, got %s", profile.Role)
	}
	if profile.ID != "u-9" || profile.Email != "nobody@shop.test" {
		t.Fatalf("expected identity carried into the synthesized profile, got %+v", profile)
	}
}

func TestResolve_AllowlistByEmail(t *testing.T) {
	source := newTestSource(t, nil)
	resolver := newTestResolver(t, &types.ProfileConfig{
		AdminAllowlist: &types.AdminAllowlistConfig{
			Emails: []string{"Admin@Shop.Test"},
		},
	}, source)

	// Email comparison is case-insensitive both ways.
	profile, err := resolver.Resolve(context.Background(), types.Identity{ID: "u-1", Email: "admin@shop.test"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if profile.Role != types.RoleAdmin {
		t.Fatalf("expected allowlisted email to grant admin, got %s", profile.Role)
	}
	if !resolver.IsAdmin() {
		t.Fatal("expected IsAdmin true")
	}
}

func TestResolve_AllowlistByID(t *testing.T) {
	source := newTestSource(t, nil)
	resolver := newTestResolver(t, &types.ProfileConfig{
		AdminAllowlist: &types.AdminAllowlistConfig{IDs: []string{"u-1"}},
	}, source)

	profile, err := resolver.Resolve(context.Background(), types.Identity{ID: "u-1"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if profile.Role != types.RoleAdmin {
		t.Fatalf("expected allowlisted id to grant admin, got %s", profile.Role)
	}
}

func TestResolve_AllowlistByMetadataFlag(t *testing.T) {
	source := newTestSource(t, nil)
	resolver := newTestResolver(t, &types.ProfileConfig{
		AdminAllowlist: &types.AdminAllowlistConfig{MetadataRoleKey: "shop_role"},
	}, source)

	admin, err := resolver.Resolve(context.Background(), types.Identity{
		ID:       "u-1",
		Metadata: map[string]string{"shop_role": "admin"},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if admin.Role != types.RoleAdmin {
		t.Fatalf("expected metadata flag to grant admin, got %s", admin.Role)
	}

	// A non-admin flag value grants nothing.
	plain, err := resolver.Resolve(context.Background(), types.Identity{
		ID:       "u-2",
		Metadata: map[string]string{"shop_role": "moderator"},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if plain.Role != types.RoleUser {
		t.Fatalf("expected user role for non-admin flag, got %s", plain.Role)
	}
}

func TestResolve_ProfileRowBeatsAllowlist(t *testing.T) {
	source := newTestSource(t, []map[string]interface{}{
		{"id": "u-1", "email": "admin@shop.test", "role": "user"},
	})
	resolver := newTestResolver(t, &types.ProfileConfig{
		AdminAllowlist: &types.AdminAllowlistConfig{Emails: []string{"admin@shop.test"}},
	}, source)

	profile, err := resolver.Resolve(context.Background(), types.Identity{ID: "u-1", Email: "admin@shop.test"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if profile.Role != types.RoleUser {
		t.Fatalf("expected stored role to win over the allowlist, got %s", profile.Role)
	}
}

func TestResolve_EmptyIdentity(t *testing.T) {
	resolver := newTestResolver(t, nil, newTestSource(t, nil))

	if _, err := resolver.Resolve(context.Background(), types.Identity{}); err != types.ErrIdentityEmpty {
		t.Fatalf("expected ErrIdentityEmpty, got: %v", err)
	}
}

func TestClear_ResetsState(t *testing.T) {
	source := newTestSource(t, nil)
	resolver := newTestResolver(t, nil, source)

	resolver.Resolve(context.Background(), types.Identity{ID: "u-1"})
	if _, ok := resolver.Profile(); !ok {
		t.Fatal("expected profile after resolve")
	}

	resolver.Clear()

	if _, ok := resolver.Profile(); ok {
		t.Fatal("expected no profile after clear")
	}
	if resolver.Phase() != ResolutionIdle {
		t.Fatalf("expected idle phase after clear, got %d", resolver.Phase())
	}
	if resolver.IsUser() || resolver.IsAdmin() {
		t.Fatal("expected no role after clear")
	}
}

func TestProfile_ReturnsCopy(t *testing.T) {
	source := newTestSource(t, nil)
	resolver := newTestResolver(t, nil, source)

	resolver.Resolve(context.Background(), types.Identity{ID: "u-1"})

	first, _ := resolver.Profile()
	first.Role = types.RoleAdmin

	second, _ := resolver.Profile()
	if second.Role != types.RoleUser {
		t.Fatal("Profile must return a copy, not the internal pointer")
	}
}
