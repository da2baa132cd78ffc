package diagnose

import (
	"fmt"
	"sort"

	"github.com/Bldg-7/authdoctor/internal/shared"
)

// Planner converts an issue list into an ordered, time-estimated
// recovery plan.
type Planner struct{}

// NewPlanner builds a recovery planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// Plan derives the recovery plan for the given issues. Critical issues are
// handled before others, auto-recoverable before manual, with the original
// order preserved within each group. Success probability starts high and is
// only ever downgraded.
func (p *Planner) Plan(issues []shared.Issue, status shared.SystemHealthStatus) shared.RecoveryPlan {
	ordered := make([]shared.Issue, len(issues))
	copy(ordered, issues)
	sort.SliceStable(ordered, func(i, j int) bool {
		left, right := ordered[i], ordered[j]
		leftCritical := left.Severity == shared.IssueSeverityCritical
		rightCritical := right.Severity == shared.IssueSeverityCritical
		if leftCritical != rightCritical {
			return leftCritical
		}
		if left.CanAutoRecover != right.CanAutoRecover {
			return left.CanAutoRecover
		}
		return false
	})

	plan := shared.RecoveryPlan{
		Steps:              []shared.RecoveryStep{},
		SuccessProbability: shared.ProbabilityHigh,
	}

	for _, issue := range ordered {
		if issue.CanAutoRecover {
			p.appendRecoverableStep(&plan, issue)
			continue
		}
		if issue.Severity == shared.IssueSeverityCritical {
			plan.Steps = append(plan.Steps, shared.RecoveryStep{
				Action:      shared.ActionManualIntervention,
				Description: "Manual intervention required: " + issue.Message,
				Automated:   false,
			})
			plan.RequiresUserInteraction = true
			plan.SuccessProbability = shared.ProbabilityLow
		}
	}

	if len(plan.Steps) > 0 {
		plan.Steps = append(plan.Steps, shared.RecoveryStep{
			Action:              shared.ActionValidateRecovery,
			Description:         "Verify that authentication is healthy again",
			Automated:           true,
			EstimatedDurationMS: 5000,
		})
	}

	var totalMS int64
	for _, step := range plan.Steps {
		totalMS += step.EstimatedDurationMS
	}
	plan.EstimatedTime = formatEstimate(totalMS)

	return plan
}

func (p *Planner) appendRecoverableStep(plan *shared.RecoveryPlan, issue shared.Issue) {
	switch issue.Kind {
	case shared.IssueTokenExpired:
		plan.Steps = append(plan.Steps, shared.RecoveryStep{
			Action:              shared.ActionRefreshToken,
			Description:         "Refresh the expired access token",
			Automated:           true,
			EstimatedDurationMS: 5000,
		})

	case shared.IssueInvalidToken:
		plan.Steps = append(plan.Steps, shared.RecoveryStep{
			Action:              shared.ActionReauthUser,
			Description:         "Sign in again to obtain a fresh session",
			Automated:           false,
			EstimatedDurationMS: 30000,
		})
		plan.RequiresUserInteraction = true
		capProbability(plan, shared.ProbabilityMedium)

	case shared.IssueInsufficientScope, shared.IssueMissingPerms:
		plan.Steps = append(plan.Steps, shared.RecoveryStep{
			Action:              shared.ActionRequestPermissions,
			Description:         "Request the missing permission grants",
			Automated:           false,
			EstimatedDurationMS: 45000,
		})
		plan.RequiresUserInteraction = true
		capProbability(plan, shared.ProbabilityMedium)

	case shared.IssueConsentRequired:
		plan.Steps = append(plan.Steps, shared.RecoveryStep{
			Action:              shared.ActionConsentFlow,
			Description:         "Complete the consent flow",
			Automated:           false,
			EstimatedDurationMS: 60000,
		})
		plan.RequiresUserInteraction = true

	case shared.IssueNetworkError:
		plan.Steps = append(plan.Steps, shared.RecoveryStep{
			Action:              shared.ActionRetryConnection,
			Description:         "Retry the connection once the network recovers",
			Automated:           true,
			EstimatedDurationMS: 10000,
		})
		downgradeProbability(plan)
	}
}

// capProbability lowers the plan probability to at most the given level.
func capProbability(plan *shared.RecoveryPlan, cap shared.SuccessProbability) {
	if probabilityRank(plan.SuccessProbability) > probabilityRank(cap) {
		plan.SuccessProbability = cap
	}
}

// downgradeProbability lowers the plan probability by one notch.
func downgradeProbability(plan *shared.RecoveryPlan) {
	switch plan.SuccessProbability {
	case shared.ProbabilityHigh:
		plan.SuccessProbability = shared.ProbabilityMedium
	case shared.ProbabilityMedium:
		plan.SuccessProbability = shared.ProbabilityLow
	}
}

func probabilityRank(p shared.SuccessProbability) int {
	switch p {
	case shared.ProbabilityHigh:
		return 2
	case shared.ProbabilityMedium:
		return 1
	default:
		return 0
	}
}

// formatEstimate renders a total step duration as a human string.
func formatEstimate(totalMS int64) string {
	if totalMS <= 60000 {
		return "Less than 1 minute"
	}
	minutes := (totalMS + 59999) / 60000
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
