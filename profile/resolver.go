package profile

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-storefront/datasource"
	"github.com/saiset-co/sai-storefront/types"
	"github.com/saiset-co/sai-storefront/utils"
)

type ResolutionState int32

const (
	ResolutionIdle ResolutionState = iota
	ResolutionLoading
	ResolutionResolved
)

// Resolver maps an authenticated identity to a role-bearing profile.
// The profile row is authoritative when it exists; when the lookup fails
// or finds nothing, the configured admin allowlist decides admin-ness
// and a profile is synthesized. The allowlist is security-relevant, so
// every fallback that grants admin is logged.
type Resolver struct {
	logger types.Logger
	config *types.ProfileConfig
	source types.DataSource

	identity types.Identity
	profile  *types.UserProfile
	phase    ResolutionState
	mu       sync.RWMutex

	adminEmails map[string]struct{}
	adminIDs    map[string]struct{}
	roleKey     string
}

func NewResolver(logger types.Logger, config *types.ProfileConfig, source types.DataSource) (*Resolver, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}

	r := &Resolver{
		logger:      logger,
		config:      config,
		source:      source,
		adminEmails: make(map[string]struct{}),
		adminIDs:    make(map[string]struct{}),
		roleKey:     "role",
	}

	if allowlist := config.AdminAllowlist; allowlist != nil {
		for _, email := range allowlist.Emails {
			r.adminEmails[utils.NormalizeTerm(email)] = struct{}{}
		}
		for _, id := range allowlist.IDs {
			r.adminIDs[id] = struct{}{}
		}
		if allowlist.MetadataRoleKey != "" {
			r.roleKey = allowlist.MetadataRoleKey
		}

		if len(r.adminEmails) > 0 || len(r.adminIDs) > 0 {
			logger.Info("Admin allowlist configured",
				zap.Int("emails", len(r.adminEmails)),
				zap.Int("ids", len(r.adminIDs)))
		}
	}

	return r, nil
}

// Resolve fetches the profile row for an identity and derives the role.
// Lookup failure is never surfaced as an error; the allowlist fallback
// decides instead.
func (r *Resolver) Resolve(ctx context.Context, identity types.Identity) (*types.UserProfile, error) {
	if identity.ID == "" {
		return nil, types.ErrIdentityEmpty
	}

	r.mu.Lock()
	r.identity = identity
	r.phase = ResolutionLoading
	r.mu.Unlock()

	profile := r.lookup(ctx, identity)
	if profile == nil {
		profile = r.fallback(identity)
	}

	r.mu.Lock()
	r.profile = profile
	r.phase = ResolutionResolved
	r.mu.Unlock()

	return profile, nil
}

// Clear resets the resolver when the identity signs out.
func (r *Resolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.identity = types.Identity{}
	r.profile = nil
	r.phase = ResolutionIdle
}

func (r *Resolver) Profile() (*types.UserProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.phase != ResolutionResolved || r.profile == nil {
		return nil, false
	}

	copied := *r.profile
	return &copied, true
}

func (r *Resolver) Phase() ResolutionState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.phase
}

func (r *Resolver) IsAdmin() bool {
	return r.role() == types.RoleAdmin
}

// IsModerator is true for moderators and admins.
func (r *Resolver) IsModerator() bool {
	role := r.role()
	return role == types.RoleModerator || role == types.RoleAdmin
}

func (r *Resolver) IsUser() bool {
	return r.role() == types.RoleUser
}

func (r *Resolver) role() types.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.phase != ResolutionResolved || r.profile == nil {
		return ""
	}
	return r.profile.Role
}

func (r *Resolver) lookup(ctx context.Context, identity types.Identity) *types.UserProfile {
	result, err := r.source.Fetch(ctx, datasource.BuildProfileQuery(identity.ID))
	if err != nil {
		r.logger.Warn("Profile lookup failed, falling back to allowlist",
			zap.String("id", identity.ID),
			zap.Error(err))
		return nil
	}

	if len(result.Rows) == 0 {
		return nil
	}

	var profile types.UserProfile
	if err := utils.Remarshal(result.Rows[0], &profile); err != nil {
		r.logger.Warn("Profile row unparsable, falling back to allowlist",
			zap.String("id", identity.ID),
			zap.Error(err))
		return nil
	}

	if profile.ID == "" {
		profile.ID = identity.ID
	}
	if profile.Email == "" {
		profile.Email = identity.Email
	}

	switch profile.Role {
	case types.RoleAdmin, types.RoleModerator, types.RoleUser:
	default:
		profile.Role = types.RoleUser
	}

	return &profile
}

// fallback synthesizes a profile when no row is available. Admin is
// granted only on an exact allowlist match or a metadata role flag.
func (r *Resolver) fallback(identity types.Identity) *types.UserProfile {
	role := types.RoleUser

	if r.isAllowlisted(identity) {
		role = types.RoleAdmin
		r.logger.Warn("Admin role granted through allowlist fallback",
			zap.String("id", identity.ID),
			zap.String("email", identity.Email))
	}

	return &types.UserProfile{
		ID:    identity.ID,
		Email: identity.Email,
		Role:  role,
	}
}

func (r *Resolver) isAllowlisted(identity types.Identity) bool {
	if _, ok := r.adminIDs[identity.ID]; ok {
		return true
	}

	if identity.Email != "" {
		if _, ok := r.adminEmails[utils.NormalizeTerm(identity.Email)]; ok {
			return true
		}
	}

	if identity.Metadata != nil {
		if flag, ok := identity.Metadata[r.roleKey]; ok && types.Role(flag) == types.RoleAdmin {
			return true
		}
	}

	return false
}
