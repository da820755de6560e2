package service

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/hive-services/backend/internal/models"
)

// Each policy line reads: role may move a request from obj to act.
const policyModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

// Edges is the lifecycle graph. Terminal statuses have no outgoing edges.
var Edges = map[models.Status][]models.Status{
	models.StatusPending: {
		models.StatusUrgent, models.StatusDelegated, models.StatusApproved,
		models.StatusRefusedByManager, models.StatusRejected,
	},
	models.StatusUrgent: {
		models.StatusDelegated, models.StatusApproved,
		models.StatusRefusedByManager, models.StatusRejected,
	},
	models.StatusRefusedByManager: {
		models.StatusDelegated, models.StatusApproved, models.StatusRejected,
	},
	models.StatusDelegated: {
		models.StatusApproved, models.StatusRefusedByManager, models.StatusRejected,
	},
	models.StatusApproved:   {models.StatusInProgress, models.StatusRejected},
	models.StatusInProgress: {models.StatusCompleted, models.StatusRejected},
}

type capability struct {
	from  []models.Status
	to    models.Status
	roles []models.Role
}

var awaiting = []models.Status{models.StatusPending, models.StatusUrgent}

var capabilities = []capability{
	{from: []models.Status{models.StatusPending}, to: models.StatusUrgent, roles: []models.Role{models.RoleSystem, models.RoleAdmin}},
	{from: awaiting, to: models.StatusDelegated, roles: []models.Role{models.RoleAdmin}},
	{from: awaiting, to: models.StatusApproved, roles: []models.Role{models.RoleManager}},
	{from: awaiting, to: models.StatusRefusedByManager, roles: []models.Role{models.RoleManager}},
	{from: []models.Status{models.StatusRefusedByManager}, to: models.StatusDelegated, roles: []models.Role{models.RoleAdmin}},
	{from: []models.Status{models.StatusRefusedByManager}, to: models.StatusApproved, roles: []models.Role{models.RoleAdmin}},
	{from: []models.Status{models.StatusDelegated}, to: models.StatusApproved, roles: []models.Role{models.RoleManager}},
	{from: []models.Status{models.StatusDelegated}, to: models.StatusRefusedByManager, roles: []models.Role{models.RoleManager}},
	{from: []models.Status{models.StatusApproved}, to: models.StatusInProgress, roles: []models.Role{models.RoleCollaborator, models.RoleManager}},
	{from: []models.Status{models.StatusInProgress}, to: models.StatusCompleted, roles: []models.Role{models.RoleCollaborator, models.RoleManager}},
}

// CanTransition reports whether to is reachable from from in one step.
func CanTransition(from, to models.Status) bool {
	for _, s := range Edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Policy answers which role may take which edge.
type Policy struct {
	enforcer *casbin.Enforcer
}

func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("policy model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("policy enforcer: %w", err)
	}

	var rules [][]string
	for _, c := range capabilities {
		for _, from := range c.from {
			for _, role := range c.roles {
				rules = append(rules, []string{string(role), string(from), string(c.to)})
			}
		}
	}
	for _, from := range models.AllStatuses {
		if from.Terminal() {
			continue
		}
		rules = append(rules, []string{string(models.RoleAdmin), string(from), string(models.StatusRejected)})
	}
	if _, err := e.AddPolicies(rules); err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	return &Policy{enforcer: e}, nil
}

func (p *Policy) Allowed(role models.Role, from, to models.Status) (bool, error) {
	return p.enforcer.Enforce(string(role), string(from), string(to))
}

// Targets lists the statuses role may move a request in from to. Used by
// clients to render only the actions the caller can take.
func (p *Policy) Targets(role models.Role, from models.Status) []models.Status {
	var out []models.Status
	for _, to := range Edges[from] {
		if ok, err := p.Allowed(role, from, to); err == nil && ok {
			out = append(out, to)
		}
	}
	return out
}
