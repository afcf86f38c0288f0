package domain

import "strings"

// Blend loan status prefixes.
const (
	BlendApplicationCreated    = "Application created"
	BlendApplicationInProgress = "Application in progress"
	BlendApplicationArchived   = "Application Archived"
	BlendApplicationCompleted  = "Application completed"
)

// completedImageCount is the number of current-home photos after which the
// photo-upload task is done.
const completedImageCount = 4

// TaskInputs is the persisted state the status rules read.
type TaskInputs struct {
	Application      *Application
	CurrentHome      *CurrentHome
	Lender           *MortgageLender
	Acknowledgements []Acknowledgement
	LoanStatus       string
}

// ComputeTaskProgress applies the category rule. ok is false for categories
// without a rule; unexpected is set when the mortgage status could not be
// parsed and the caller should log it.
func ComputeTaskProgress(cat TaskCategory, in TaskInputs) (progress TaskProgress, ok bool, unexpected bool) {
	switch cat {
	case TaskRealEstateAgent:
		return agentCoverage(in), true, false
	case TaskLender:
		if in.Application.NeedsLender || in.Lender.IsComplete() {
			return ProgressCompleted, true, false
		}
		return ProgressNotStarted, true, false
	case TaskBuyingSituation:
		return ProgressCompleted, true, false
	case TaskDisclosures:
		return disclosureProgress(in.Acknowledgements), true, false
	case TaskExistingProperty:
		h := in.CurrentHome
		if h == nil || h.ListingStatus.IsListedOrUnderContract() || h.CustomerValueOpinion != nil {
			return ProgressCompleted, true, false
		}
		return ProgressNotStarted, true, false
	case TaskPhotoUpload:
		h := in.CurrentHome
		switch {
		case h == nil, h.ListingStatus.IsListedOrUnderContract(), len(h.Images) > completedImageCount:
			return ProgressCompleted, true, false
		case len(h.Images) > 0:
			return ProgressInProgress, true, false
		}
		return ProgressNotStarted, true, false
	case TaskHomewardMortgage:
		p, unexpected := MortgageProgress(in.LoanStatus, in.Application.Stage)
		return p, true, unexpected
	}
	return "", false, false
}

func agentCoverage(in TaskInputs) TaskProgress {
	app := in.Application
	required, covered := 1, 0
	if app.BuyingAgentID != nil || app.NeedsBuyingAgent {
		covered++
	}
	if app.ProductOffering == ProductBuySell && in.CurrentHome != nil {
		required++
		if app.ListingAgentID != nil || app.NeedsListingAgent {
			covered++
		}
	}
	switch {
	case covered >= required:
		return ProgressCompleted
	case covered > 0:
		return ProgressInProgress
	}
	return ProgressNotStarted
}

func disclosureProgress(acks []Acknowledgement) TaskProgress {
	if len(acks) == 0 {
		return ProgressCompleted
	}
	done := 0
	for _, a := range acks {
		if a.IsAcknowledged {
			done++
		}
	}
	switch {
	case done == len(acks):
		return ProgressCompleted
	case done > 0:
		return ProgressInProgress
	}
	return ProgressNotStarted
}

// MortgageProgress maps a Blend loan status string onto task progress.
func MortgageProgress(status string, stage ApplicationStage) (TaskProgress, bool) {
	switch {
	case status == "":
		return ProgressNotStarted, false
	case status == BlendApplicationCreated,
		strings.HasPrefix(status, BlendApplicationInProgress),
		status == BlendApplicationArchived:
		return ProgressInProgress, false
	case strings.HasPrefix(status, BlendApplicationCompleted):
		if stage.IsPostApproval() {
			return ProgressCompleted, false
		}
		return ProgressUnderReview, false
	}
	return ProgressUnderReview, true
}
