package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hive-services/backend/internal/apperrors"
	"github.com/hive-services/backend/internal/db"
	"github.com/hive-services/backend/internal/models"
	"github.com/hive-services/backend/internal/utils"
)

// AssignmentResolver binds requests to managers, teams and collaborators
// using the roster held by the repository.
type AssignmentResolver struct {
	Repo      db.Repository
	Validator *validator.Validate
}

// RosterInput seeds managers and teams. Roster administration proper lives
// in another system; this only mirrors it.
type RosterInput struct {
	Managers []ManagerInput `json:"managers" validate:"dive"`
	Teams    []TeamInput    `json:"teams" validate:"dive"`
}

type ManagerInput struct {
	ID     string        `json:"id" validate:"required"`
	Name   string        `json:"name" validate:"required"`
	Email  string        `json:"email" validate:"omitempty,email"`
	Areas  []models.Area `json:"areas" validate:"min=1,dive,oneof=norte sul leste oeste centro"`
	Active *bool         `json:"active"`
}

type TeamInput struct {
	ID        string      `json:"id" validate:"required"`
	Name      string      `json:"name" validate:"required"`
	ManagerID string      `json:"manager_id" validate:"required"`
	Area      models.Area `json:"area" validate:"required,oneof=norte sul leste oeste centro"`
	Members   []string    `json:"members" validate:"dive,required"`
	Active    *bool       `json:"active"`
}

type Assignment struct {
	ManagerID     string
	Team          string
	Collaborator  string
	ScheduledDate string
	Description   string
}

type EligibilityResult struct {
	Eligible   []Candidate        `json:"eligible"`
	Picked     *Candidate         `json:"picked,omitempty"`
	ReasonCode string             `json:"reason_code,omitempty"`
	ReasonText string             `json:"reason_text,omitempty"`
	Stages     []EligibilityStage `json:"stages"`
}

type EligibilityStage struct {
	Name       string      `json:"name"`
	Candidates []Candidate `json:"candidates"`
}

type Candidate struct {
	models.Manager
	Load int `json:"load"`
}

func (a *AssignmentResolver) UpsertRoster(ctx context.Context, in RosterInput) (int, int, error) {
	v := a.Validator
	if v == nil {
		v = NewValidator()
	}
	if err := v.Struct(in); err != nil {
		return 0, 0, apperrors.Validation("%s", validationMessage(err))
	}

	known := map[string]bool{}
	managers := make([]models.Manager, 0, len(in.Managers))
	for _, m := range in.Managers {
		known[m.ID] = true
		managers = append(managers, models.Manager{
			ID:     m.ID,
			Name:   strings.TrimSpace(m.Name),
			Email:  strings.TrimSpace(m.Email),
			Areas:  m.Areas,
			Active: m.Active == nil || *m.Active,
		})
	}
	teams := make([]models.Team, 0, len(in.Teams))
	for _, t := range in.Teams {
		if !known[t.ManagerID] {
			if _, err := a.Repo.GetManager(ctx, t.ManagerID); err != nil {
				if errors.Is(err, db.ErrNotFound) {
					return 0, 0, apperrors.Validation("team %s references unknown manager %s", t.ID, t.ManagerID)
				}
				return 0, 0, err
			}
		}
		teams = append(teams, models.Team{
			ID:        t.ID,
			Name:      strings.TrimSpace(t.Name),
			ManagerID: t.ManagerID,
			Area:      t.Area,
			Members:   uniqueStrings(t.Members),
			Active:    t.Active == nil || *t.Active,
		})
	}
	if err := a.Repo.UpsertRoster(ctx, managers, teams); err != nil {
		return 0, 0, fmt.Errorf("upsert roster: %w", err)
	}
	return len(managers), len(teams), nil
}

// Approve fills the assignment fields of req for an approval by actor.
// req must still carry the status it is leaving.
func (a *AssignmentResolver) Approve(ctx context.Context, actor models.Actor, req *models.ServiceRequest, in Assignment) error {
	team := strings.TrimSpace(in.Team)
	collaborator := strings.TrimSpace(in.Collaborator)
	if strings.TrimSpace(in.ScheduledDate) == "" {
		return apperrors.MissingAssignment("a scheduled date is required to approve")
	}
	if team == "" && collaborator == "" {
		return apperrors.MissingAssignment("assign a team or a collaborator to approve")
	}

	managerID := req.AssignedManagerID
	switch {
	case actor.Role == models.RoleManager:
		managerID = actor.ID
	case in.ManagerID != "":
		managerID = in.ManagerID
	}
	if managerID == "" && team != "" {
		t, err := a.findTeamByName(ctx, "", team)
		if err != nil {
			return err
		}
		managerID = t.ManagerID
	}
	if managerID == "" {
		return apperrors.MissingAssignment("no manager to approve under")
	}

	mgr, err := a.activeManager(ctx, managerID)
	if err != nil {
		return err
	}

	// A delegated request keeps the area chosen by the admin override.
	area := req.AssignedManagerArea
	delegated := req.Status == models.StatusDelegated && req.AssignedManagerID == mgr.ID && area != ""
	if !delegated {
		if !mgr.Covers(req.ClientArea) {
			return apperrors.Validation("manager %s does not cover area %s", mgr.ID, req.ClientArea)
		}
		area = req.ClientArea
	}

	if err := a.checkRoster(ctx, mgr.ID, team, collaborator); err != nil {
		return err
	}

	req.AssignedManagerID = mgr.ID
	req.AssignedManager = mgr.Name
	req.AssignedManagerArea = area
	req.AssignedTeam = team
	req.AssignedCollaborator = collaborator
	req.ScheduledDate = strings.TrimSpace(in.ScheduledDate)
	req.ScheduledDescription = strings.TrimSpace(in.Description)
	return nil
}

// Delegate hands req to another manager. This is the only path that may
// leave the manager area different from the client area.
func (a *AssignmentResolver) Delegate(ctx context.Context, req *models.ServiceRequest, managerID string, area models.Area) error {
	if strings.TrimSpace(managerID) == "" {
		return apperrors.Validation("manager_id is required to delegate")
	}
	mgr, err := a.activeManager(ctx, managerID)
	if err != nil {
		return err
	}
	switch {
	case area != "":
		if !area.Valid() {
			return apperrors.Validation("unknown area %q", area)
		}
		if !mgr.Covers(area) {
			return apperrors.Validation("manager %s does not cover area %s", mgr.ID, area)
		}
	case mgr.Covers(req.ClientArea):
		area = req.ClientArea
	case len(mgr.Areas) > 0:
		area = mgr.Areas[0]
	default:
		return apperrors.Validation("manager %s has no area", mgr.ID)
	}

	req.AssignedManagerID = mgr.ID
	req.AssignedManager = mgr.Name
	req.AssignedManagerArea = area
	req.AssignedTeam = ""
	req.AssignedCollaborator = ""
	return nil
}

// OwnsAsManager reports whether a manager actor may act on req.
func OwnsAsManager(actor models.Actor, req models.ServiceRequest) bool {
	if req.AssignedManagerID != "" {
		return req.AssignedManagerID == actor.ID
	}
	return actor.Covers(req.ClientArea)
}

// AssignedCollaborator reports whether collaboratorID works on req, either
// directly or through the assigned team.
func (a *AssignmentResolver) AssignedCollaborator(ctx context.Context, req models.ServiceRequest, collaboratorID string) (bool, error) {
	if collaboratorID == "" {
		return false, nil
	}
	if req.AssignedCollaborator == collaboratorID {
		return true, nil
	}
	if req.AssignedTeam == "" {
		return false, nil
	}
	teams, err := a.Repo.ListTeams(ctx, req.AssignedManagerID)
	if err != nil {
		return false, err
	}
	for _, t := range teams {
		if t.Name == req.AssignedTeam && t.HasMember(collaboratorID) {
			return true, nil
		}
	}
	return false, nil
}

// TeamsOf returns the names of the teams collaboratorID belongs to.
func (a *AssignmentResolver) TeamsOf(ctx context.Context, collaboratorID string) ([]string, error) {
	teams, err := a.Repo.ListTeams(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, t := range teams {
		if t.HasMember(collaboratorID) {
			out = append(out, t.Name)
		}
	}
	return out, nil
}

// Eligibility runs the staged delegation filter for req.
func (a *AssignmentResolver) Eligibility(ctx context.Context, req models.ServiceRequest) (EligibilityResult, error) {
	managers, err := a.Repo.ListManagers(ctx, req.ClientArea)
	if err != nil {
		return EligibilityResult{}, err
	}
	teams, err := a.Repo.ListTeams(ctx, "")
	if err != nil {
		return EligibilityResult{}, err
	}
	loads, err := a.Repo.ManagerLoads(ctx)
	if err != nil {
		return EligibilityResult{}, err
	}

	candidates := make([]Candidate, 0, len(managers))
	for _, m := range managers {
		candidates = append(candidates, Candidate{Manager: m, Load: loads[m.ID]})
	}
	res := FilterEligibleManagers(candidates, teams, req)
	if len(res.Eligible) > 0 {
		picked, _ := PickAssignee(req.ID, res.Eligible)
		res.Picked = &picked
	}
	return res, nil
}

// FilterEligibleManagers narrows candidates stage by stage and records each stage.
func FilterEligibleManagers(candidates []Candidate, teams []models.Team, req models.ServiceRequest) EligibilityResult {
	var result EligibilityResult

	afterArea := filterCandidates(candidates, func(c Candidate) bool {
		return c.Covers(req.ClientArea)
	})
	result.Stages = append(result.Stages, EligibilityStage{Name: "area_rule", Candidates: afterArea})
	if len(afterArea) == 0 {
		result.ReasonCode = "NO_MANAGER_IN_AREA"
		result.ReasonText = fmt.Sprintf("No manager covers area %s", req.ClientArea)
		return result
	}

	afterActive := filterCandidates(afterArea, func(c Candidate) bool { return c.Active })
	result.Stages = append(result.Stages, EligibilityStage{Name: "active_rule", Candidates: afterActive})
	if len(afterActive) == 0 {
		result.ReasonCode = "NO_ACTIVE_MANAGER"
		result.ReasonText = "All managers in area are inactive"
		return result
	}

	afterCurrent := filterCandidates(afterActive, func(c Candidate) bool { return c.ID != req.AssignedManagerID })
	result.Stages = append(result.Stages, EligibilityStage{Name: "reassignment_rule", Candidates: afterCurrent})
	if len(afterCurrent) == 0 {
		result.ReasonCode = "ONLY_CURRENT_MANAGER"
		result.ReasonText = "The current manager is the only option"
		return result
	}

	afterTeam := filterCandidates(afterCurrent, func(c Candidate) bool {
		for _, t := range teams {
			if t.ManagerID == c.ID && t.Active {
				return true
			}
		}
		return false
	})
	result.Stages = append(result.Stages, EligibilityStage{Name: "team_rule", Candidates: afterTeam})
	if len(afterTeam) == 0 {
		result.ReasonCode = "NO_ACTIVE_TEAM"
		result.ReasonText = "No eligible manager has an active team"
		return result
	}

	result.Eligible = afterTeam
	return result
}

// PickAssignee orders eligible by load and picks deterministically among the
// two least loaded, keyed on the request id.
func PickAssignee(requestID string, eligible []Candidate) (Candidate, []Candidate) {
	sorted := append([]Candidate{}, eligible...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Load == sorted[j].Load {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].Load < sorted[j].Load
	})

	if len(sorted) == 0 {
		return Candidate{}, nil
	}
	if len(sorted) <= 2 {
		return sorted[utils.StableIndex(requestID, len(sorted))], sorted
	}

	top2 := sorted[:2]
	return top2[utils.StableIndex(requestID, 2)], top2
}

func (a *AssignmentResolver) activeManager(ctx context.Context, id string) (models.Manager, error) {
	mgr, err := a.Repo.GetManager(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return models.Manager{}, apperrors.Validation("manager %s is not on the roster", id)
	}
	if err != nil {
		return models.Manager{}, err
	}
	if !mgr.Active {
		return models.Manager{}, apperrors.Validation("manager %s is inactive", id)
	}
	return mgr, nil
}

func (a *AssignmentResolver) checkRoster(ctx context.Context, managerID, team, collaborator string) error {
	teams, err := a.Repo.ListTeams(ctx, managerID)
	if err != nil {
		return err
	}
	var picked *models.Team
	if team != "" {
		for i := range teams {
			if teams[i].Name == team && teams[i].Active {
				picked = &teams[i]
				break
			}
		}
		if picked == nil {
			return apperrors.Validation("team %q is not on manager %s's roster", team, managerID)
		}
	}
	if collaborator == "" {
		return nil
	}
	if picked != nil {
		if !picked.HasMember(collaborator) {
			return apperrors.Validation("collaborator %s is not a member of team %q", collaborator, team)
		}
		return nil
	}
	for _, t := range teams {
		if t.Active && t.HasMember(collaborator) {
			return nil
		}
	}
	return apperrors.Validation("collaborator %s is not on manager %s's roster", collaborator, managerID)
}

func (a *AssignmentResolver) findTeamByName(ctx context.Context, managerID, name string) (models.Team, error) {
	teams, err := a.Repo.ListTeams(ctx, managerID)
	if err != nil {
		return models.Team{}, err
	}
	for _, t := range teams {
		if t.Name == name {
			return t, nil
		}
	}
	return models.Team{}, apperrors.Validation("team %q is not on the roster", name)
}

func filterCandidates(in []Candidate, keep func(Candidate) bool) []Candidate {
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}
