package config

import "makedeal/internal/models"

func stageTask(title string, priority models.TaskPriority) models.StageTaskTemplate {
	return models.StageTaskTemplate{Title: title, Priority: priority, DueDays: 7}
}

// DefaultStages is the catalog seeded into an empty store.
func DefaultStages() []models.StageDefinition {
	p := models.IntPtr
	return []models.StageDefinition{
		{
			Key: "sourcing", DisplayName: "Sourcing", SortOrder: 10,
			WipLimit: p(50), WarningDays: p(30), CriticalDays: p(60),
			DefaultProbability: 10, SalesStage: "Prospecting",
		},
		{
			Key: "screening", DisplayName: "Screening", SortOrder: 20,
			WipLimit: p(25), WarningDays: p(14), CriticalDays: p(30),
			DefaultProbability: 20, SalesStage: "Qualification",
		},
		{
			Key: "analysis_outreach", DisplayName: "Analysis & Outreach", SortOrder: 30,
			WipLimit: p(15), WarningDays: p(21), CriticalDays: p(45),
			DefaultProbability: 30, SalesStage: "Needs Analysis",
		},
		{
			Key: "term_sheet", DisplayName: "Term Sheet", SortOrder: 40,
			WipLimit: p(10), WarningDays: p(30), CriticalDays: p(60),
			DefaultProbability: 50, SalesStage: "Value Proposition",
			AutoTasks: []models.StageTaskTemplate{
				stageTask("Build valuation model", models.PriorityHigh),
				stageTask("Draft letter of intent", models.PriorityHigh),
			},
		},
		{
			Key: "due_diligence", DisplayName: "Due Diligence", SortOrder: 50,
			WipLimit: p(8), WarningDays: p(45), CriticalDays: p(90),
			DefaultProbability: 70, SalesStage: "Id. Decision Makers",
			AutoTasks: []models.StageTaskTemplate{
				stageTask("Review financial statements", models.PriorityHigh),
				stageTask("Verify legal documentation", models.PriorityHigh),
				stageTask("Conduct management interviews", models.PriorityNormal),
			},
		},
		{
			Key: "final_negotiation", DisplayName: "Final Negotiation", SortOrder: 60,
			WipLimit: p(5), WarningDays: p(30), CriticalDays: p(60),
			DefaultProbability: 85, SalesStage: "Negotiation/Review",
			AutoTasks: []models.StageTaskTemplate{
				stageTask("Negotiate purchase agreement terms", models.PriorityHigh),
				stageTask("Confirm financing commitments", models.PriorityNormal),
			},
		},
		{
			Key: "closing", DisplayName: "Closing", SortOrder: 70,
			WipLimit: p(5), WarningDays: p(21), CriticalDays: p(45),
			DefaultProbability: 95, SalesStage: "Negotiation/Review",
			AutoTasks: []models.StageTaskTemplate{
				stageTask("Prepare closing checklist", models.PriorityHigh),
				stageTask("Schedule closing meeting", models.PriorityHigh),
				stageTask("Final document review", models.PriorityHigh),
			},
		},
		{
			Key: "closed_won", DisplayName: "Closed Won", SortOrder: 80,
			DefaultProbability: 100, IsWonTerminal: true, SalesStage: "Closed Won",
		},
		{
			Key: "closed_lost", DisplayName: "Closed Lost", SortOrder: 90,
			DefaultProbability: 0, IsLostTerminal: true, SalesStage: "Closed Lost",
		},
		{
			Key: "unavailable", DisplayName: "Unavailable", SortOrder: 100,
			WarningDays: p(180), CriticalDays: p(365),
			DefaultProbability: 5,
		},
	}
}
