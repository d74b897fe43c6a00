package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/complaint-service/internal/domain"
	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

// Permission names one guarded operation.
type Permission string

const (
	PermComplaintCreate      Permission = "complaint:create"
	PermComplaintRead        Permission = "complaint:read"
	PermComplaintList        Permission = "complaint:list"
	PermComplaintListOwn     Permission = "complaint:list_own"
	PermComplaintSetStatus   Permission = "complaint:set_status"
	PermComplaintSetPriority Permission = "complaint:set_priority"
	PermComplaintSendProof   Permission = "complaint:send_proof"
	PermComplaintFeedback    Permission = "complaint:feedback"
	PermComplaintClose       Permission = "complaint:close"
	PermComplaintForward     Permission = "complaint:forward"
	PermComplaintReject      Permission = "complaint:reject"
	PermUserList             Permission = "user:list"
	PermUserUpdate           Permission = "user:update"
	PermStatsRead            Permission = "stats:read"
)

const gateModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.act == p.act
`

// DefaultPolicy is the role to permission table every operation is checked against.
var DefaultPolicy = map[domain.Role][]Permission{
	domain.RoleCitizen: {
		PermComplaintCreate,
		PermComplaintRead,
		PermComplaintListOwn,
		PermComplaintFeedback,
		PermComplaintClose,
	},
	domain.RoleAdmin: {
		PermComplaintRead,
		PermComplaintList,
		PermComplaintSetStatus,
		PermComplaintSetPriority,
		PermComplaintSendProof,
	},
	domain.RoleSuperadmin: {
		PermComplaintRead,
		PermComplaintList,
		PermComplaintSetStatus,
		PermComplaintSetPriority,
		PermComplaintSendProof,
		PermComplaintForward,
		PermComplaintReject,
		PermUserList,
		PermUserUpdate,
		PermStatsRead,
	},
}

// Gate is the single authorization check for every role-restricted operation.
type Gate struct {
	enforcer *casbin.Enforcer
}

// NewGate loads policy into an in-memory casbin enforcer.
func NewGate(policy map[domain.Role][]Permission) (*Gate, error) {
	m, err := model.NewModelFromString(gateModel)
	if err != nil {
		return nil, fmt.Errorf("load gate model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	for role, perms := range policy {
		for _, perm := range perms {
			if _, err := enforcer.AddPolicy(string(role), string(perm)); err != nil {
				return nil, fmt.Errorf("add policy %s %s: %w", role, perm, err)
			}
		}
	}
	return &Gate{enforcer: enforcer}, nil
}

// NewDefaultGate builds a gate over DefaultPolicy.
func NewDefaultGate() (*Gate, error) {
	return NewGate(DefaultPolicy)
}

// Allowed reports whether role holds perm.
func (g *Gate) Allowed(role domain.Role, perm Permission) bool {
	ok, err := g.enforcer.Enforce(string(role), string(perm))
	return err == nil && ok
}

// Authorize returns a forbidden error when the actor's role lacks perm.
func (g *Gate) Authorize(actor domain.Actor, perm Permission) error {
	if actor.UserID == "" {
		return apperrors.NewUnauthorized("authentication required")
	}
	if !g.Allowed(actor.Role, perm) {
		return apperrors.NewDomainError("FORBIDDEN", "role not permitted", fiber.StatusForbidden, map[string]any{
			"role":       actor.Role,
			"permission": perm,
		})
	}
	return nil
}

// Require guards a route with perm. AuthMiddleware.Handle must run first.
func (g *Gate) Require(perm Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if err := g.Authorize(principal.Actor(), perm); err != nil {
			return err
		}
		return c.Next()
	}
}
