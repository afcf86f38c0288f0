package domain_test

import (
	"testing"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestComputeTaskProgress(t *testing.T) {
	agentID := uuid.New()
	opinion := 420000.0
	buySell := &domain.Application{ProductOffering: domain.ProductBuySell, Stage: domain.StageIncomplete}
	images := func(n int) []string { return make([]string, n) }

	tests := []struct {
		name string
		cat  domain.TaskCategory
		in   domain.TaskInputs
		want domain.TaskProgress
	}{
		{"photo upload without home", domain.TaskPhotoUpload, domain.TaskInputs{Application: buySell}, domain.ProgressCompleted},
		{"photo upload no images", domain.TaskPhotoUpload, domain.TaskInputs{Application: buySell, CurrentHome: &domain.CurrentHome{}}, domain.ProgressNotStarted},
		{"photo upload four images", domain.TaskPhotoUpload, domain.TaskInputs{Application: buySell, CurrentHome: &domain.CurrentHome{Images: images(4)}}, domain.ProgressInProgress},
		{"photo upload five images", domain.TaskPhotoUpload, domain.TaskInputs{Application: buySell, CurrentHome: &domain.CurrentHome{Images: images(5)}}, domain.ProgressCompleted},
		{"photo upload under contract", domain.TaskPhotoUpload, domain.TaskInputs{Application: buySell, CurrentHome: &domain.CurrentHome{ListingStatus: domain.ListingUnderContract}}, domain.ProgressCompleted},
		{"existing property sold", domain.TaskExistingProperty, domain.TaskInputs{Application: buySell, CurrentHome: &domain.CurrentHome{ListingStatus: domain.ListingSold}}, domain.ProgressNotStarted},
		{"existing property opinion", domain.TaskExistingProperty, domain.TaskInputs{Application: buySell, CurrentHome: &domain.CurrentHome{CustomerValueOpinion: &opinion}}, domain.ProgressCompleted},
		{"agent only buying side", domain.TaskRealEstateAgent, domain.TaskInputs{
			Application: &domain.Application{ProductOffering: domain.ProductBuySell, BuyingAgentID: &agentID},
			CurrentHome: &domain.CurrentHome{},
		}, domain.ProgressInProgress},
		{"agent both sides", domain.TaskRealEstateAgent, domain.TaskInputs{
			Application: &domain.Application{ProductOffering: domain.ProductBuySell, BuyingAgentID: &agentID, NeedsListingAgent: true},
			CurrentHome: &domain.CurrentHome{},
		}, domain.ProgressCompleted},
		{"agent buy-only", domain.TaskRealEstateAgent, domain.TaskInputs{
			Application: &domain.Application{ProductOffering: domain.ProductBuyOnly, NeedsBuyingAgent: true},
		}, domain.ProgressCompleted},
		{"lender needed", domain.TaskLender, domain.TaskInputs{Application: &domain.Application{NeedsLender: true}}, domain.ProgressCompleted},
		{"lender incomplete", domain.TaskLender, domain.TaskInputs{Application: buySell, Lender: &domain.MortgageLender{Name: "Lou"}}, domain.ProgressNotStarted},
		{"no disclosures", domain.TaskDisclosures, domain.TaskInputs{Application: buySell}, domain.ProgressCompleted},
		{"some disclosures", domain.TaskDisclosures, domain.TaskInputs{Application: buySell, Acknowledgements: []domain.Acknowledgement{
			{IsAcknowledged: true}, {},
		}}, domain.ProgressInProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, _ := domain.ComputeTaskProgress(tt.cat, tt.in)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMortgageProgress(t *testing.T) {
	tests := []struct {
		status     string
		stage      domain.ApplicationStage
		want       domain.TaskProgress
		unexpected bool
	}{
		{"", domain.StageIncomplete, domain.ProgressNotStarted, false},
		{"Application created", domain.StageIncomplete, domain.ProgressInProgress, false},
		{"Application in progress: Assets", domain.StageIncomplete, domain.ProgressInProgress, false},
		{"Application Archived", domain.StageQualified, domain.ProgressInProgress, false},
		{"Application completed: Submitted", domain.StageQualified, domain.ProgressUnderReview, false},
		{"Application completed: Submitted", domain.StageApproved, domain.ProgressCompleted, false},
		{"Something new", domain.StageApproved, domain.ProgressUnderReview, true},
	}
	for _, tt := range tests {
		t.Run(tt.status+"/"+string(tt.stage), func(t *testing.T) {
			got, unexpected := domain.MortgageProgress(tt.status, tt.stage)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.unexpected, unexpected)
		})
	}
}

func TestAreAllTasksComplete(t *testing.T) {
	statuses := []domain.TaskStatus{
		{Category: domain.TaskRealEstateAgent, Status: domain.ProgressCompleted},
		{Category: domain.TaskHomewardMortgage, Status: domain.ProgressNotStarted},
	}
	assert.True(t, domain.AreAllTasksComplete(statuses))

	statuses = append(statuses, domain.TaskStatus{Category: domain.TaskDisclosures, Status: domain.ProgressInProgress})
	assert.False(t, domain.AreAllTasksComplete(statuses))
}

func TestIsActionable(t *testing.T) {
	agent, photos := uuid.New(), uuid.New()
	deps := []domain.TaskDependency{{TaskID: photos, DependsOnID: agent}}

	pending := []domain.TaskStatus{{TaskID: agent, Status: domain.ProgressInProgress}, {TaskID: photos}}
	done := []domain.TaskStatus{{TaskID: agent, Status: domain.ProgressCompleted}, {TaskID: photos}}

	assert.False(t, domain.IsActionable(photos, deps, pending))
	assert.True(t, domain.IsActionable(photos, deps, done))
	assert.True(t, domain.IsActionable(agent, deps, pending))
}

func TestTask_IsActiveAt(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	task := domain.Task{ActiveFrom: &from, ActiveTo: &to}

	assert.False(t, task.IsActiveAt(from.Add(-time.Second)))
	assert.True(t, task.IsActiveAt(from))
	assert.False(t, task.IsActiveAt(to))
	assert.True(t, (&domain.Task{}).IsActiveAt(to))
}
