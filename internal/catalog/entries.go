package catalog

import "github.com/aidis-io/aidis/pkg/models"

// Category names, in the order aidis_help lists them.
const (
	CategorySystem    = "System"
	CategoryProjects  = "Projects"
	CategorySessions  = "Sessions"
	CategoryContext   = "Context"
	CategoryDecisions = "Decisions"
	CategoryTasks     = "Tasks"
)

// Introspection names the tools that are always available and never
// require a session or project.
var Introspection = map[string]bool{
	"aidis_ping":     true,
	"aidis_status":   true,
	"aidis_help":     true,
	"aidis_explain":  true,
	"aidis_examples": true,
}

func contextTypeValues() []string {
	out := make([]string, len(models.ContextTypes))
	for i, t := range models.ContextTypes {
		out[i] = string(t)
	}
	return out
}

func impactValues() []string {
	out := make([]string, len(models.ImpactLevels))
	for i, l := range models.ImpactLevels {
		out[i] = string(l)
	}
	return out
}

func decisionStatusValues() []string {
	out := make([]string, len(models.DecisionStatuses))
	for i, s := range models.DecisionStatuses {
		out[i] = string(s)
	}
	return out
}

func taskStatusValues() []string {
	out := make([]string, len(models.TaskStatuses))
	for i, s := range models.TaskStatuses {
		out[i] = string(s)
	}
	return out
}

func taskPriorityValues() []string {
	out := make([]string, len(models.TaskPriorities))
	for i, p := range models.TaskPriorities {
		out[i] = string(p)
	}
	return out
}

// projectRef is the optional explicit project override carried by most
// domain tools. When absent the session's current project applies.
func projectRef() Field {
	return String("projectId", "Project id or name; defaults to the session's current project")
}

// Default returns the full tool catalog. Built once at startup;
// definition errors panic.
func Default() *Catalog {
	return MustNew([]Entry{
		// ------------------------------------------------------------------
		// System
		// ------------------------------------------------------------------
		{
			Name:        "aidis_ping",
			Description: "Echo a message to verify the server is responsive",
			Category:    CategorySystem,
			Schema: Schema{Fields: []Field{
				String("message", "Text echoed back in the reply"),
			}},
			Examples: []Example{
				{Description: "Liveness check", Arguments: map[string]any{"message": "hello"}},
			},
		},
		{
			Name:        "aidis_status",
			Description: "Report server uptime, database connectivity, tool count, and open sessions",
			Category:    CategorySystem,
			Schema:      Schema{},
			Examples: []Example{
				{Description: "Current server health", Arguments: map[string]any{}},
			},
		},
		{
			Name:        "aidis_help",
			Description: "List every available tool grouped by category",
			Category:    CategorySystem,
			Schema:      Schema{},
			Examples: []Example{
				{Description: "Discover the catalog", Arguments: map[string]any{}},
			},
		},
		{
			Name:        "aidis_explain",
			Description: "Show one tool's full description and argument schema",
			Category:    CategorySystem,
			Schema: Schema{Fields: []Field{
				String("name", "Tool to explain").Req(),
			}},
			Examples: []Example{
				{Description: "Explain the context search tool", Arguments: map[string]any{"name": "context_search"}},
			},
		},
		{
			Name:        "aidis_examples",
			Description: "Show stored example invocations for one tool",
			Category:    CategorySystem,
			Schema: Schema{Fields: []Field{
				String("name", "Tool to show examples for").Req(),
			}},
			Examples: []Example{
				{Description: "Examples for decision recording", Arguments: map[string]any{"name": "decision_record"}},
			},
		},

		// ------------------------------------------------------------------
		// Projects
		// ------------------------------------------------------------------
		{
			Name:        "project_list",
			Description: "List all projects with context and session counts",
			Category:    CategoryProjects,
			Schema:      Schema{},
			Examples: []Example{
				{Description: "Show every project", Arguments: map[string]any{}},
			},
		},
		{
			Name:        "project_create",
			Description: "Create a new project",
			Category:    CategoryProjects,
			Schema: Schema{Fields: []Field{
				String("name", "Unique project name").Req().Len(1, 100),
				String("description", "What the project is for").Len(-1, 2000),
			}},
			Examples: []Example{
				{Description: "Create a project", Arguments: map[string]any{"name": "billing-service", "description": "Invoicing and payments"}},
			},
		},
		{
			Name:        "project_info",
			Description: "Show one project's details",
			Category:    CategoryProjects,
			Schema: Schema{Fields: []Field{
				String("project", "Project id or name").Req(),
			}},
			Examples: []Example{
				{Description: "Inspect a project", Arguments: map[string]any{"project": "billing-service"}},
			},
		},
		{
			Name:        "project_switch",
			Description: "Point the calling session at a different project",
			Category:    CategoryProjects,
			Schema: Schema{Fields: []Field{
				String("project", "Project id or name").Req(),
			}},
			Examples: []Example{
				{Description: "Work on another project", Arguments: map[string]any{"project": "billing-service"}},
			},
		},
		{
			Name:        "project_set_primary",
			Description: "Promote a project to the system-wide default",
			Category:    CategoryProjects,
			Schema: Schema{Fields: []Field{
				String("project", "Project id or name").Req(),
			}},
			Examples: []Example{
				{Description: "Make billing the default", Arguments: map[string]any{"project": "billing-service"}},
			},
		},

		// ------------------------------------------------------------------
		// Sessions
		// ------------------------------------------------------------------
		{
			Name:        "session_status",
			Description: "Show the calling session and its live activity counters",
			Category:    CategorySessions,
			Schema:      Schema{},
			Examples: []Example{
				{Description: "Current session state", Arguments: map[string]any{}},
			},
		},
		{
			Name:        "session_new",
			Description: "Start a fresh session, ending the current one if active",
			Category:    CategorySessions,
			Schema: Schema{Fields: []Field{
				String("title", "Session title").Len(-1, 255),
				String("agentType", "Descriptor of the calling agent").Len(-1, 100),
			}},
			Examples: []Example{
				{Description: "Begin a named session", Arguments: map[string]any{"title": "Refactor auth flow"}},
			},
		},
		{
			Name:        "session_update",
			Description: "Annotate the calling session and record token usage",
			Category:    CategorySessions,
			Schema: Schema{Fields: []Field{
				String("title", "Session title").Len(-1, 255),
				String("description", "Longer session description").Len(-1, 5000),
				Integer("inputTokens", "Input tokens consumed since the last update").Range(0, 1e12),
				Integer("outputTokens", "Output tokens produced since the last update").Range(0, 1e12),
			}},
			Examples: []Example{
				{Description: "Record token usage", Arguments: map[string]any{"inputTokens": 1200, "outputTokens": 450}},
			},
		},
		{
			Name:        "session_end",
			Description: "End the calling session and flush its counters",
			Category:    CategorySessions,
			Schema:      Schema{},
			Examples: []Example{
				{Description: "Wrap up", Arguments: map[string]any{}},
			},
		},

		// ------------------------------------------------------------------
		// Context
		// ------------------------------------------------------------------
		{
			Name:        "context_store",
			Description: "Store a context entry with a searchable embedding",
			Category:    CategoryContext,
			Schema: Schema{Fields: []Field{
				Enum("type", "Kind of context being recorded", contextTypeValues()...).Req(),
				String("content", "The content to remember").Req().Len(1, 100000),
				StringArray("tags", "Free-form tags").Items(-1, 20),
				projectRef(),
			}},
			Aliases: map[string]string{
				"text":        "content",
				"body":        "content",
				"contextType": "type",
				"category":    "type",
			},
			Examples: []Example{
				{Description: "Record a decision context", Arguments: map[string]any{"type": "decision", "content": "Use BullMQ for job queues", "tags": []string{"queues"}}},
				{Description: "Record an error", Arguments: map[string]any{"category": "error", "content": "pgvector index rebuild fails on 0-length vectors"}},
			},
		},
		{
			Name:        "context_search",
			Description: "Search stored contexts by semantic similarity",
			Category:    CategoryContext,
			Schema: Schema{Fields: []Field{
				String("query", "What to look for").Req().Len(1, 10000),
				Integer("limit", "Maximum results").Range(1, 50).WithDefault(10),
				Enum("type", "Restrict to one context type", contextTypeValues()...),
				StringArray("tags", "Restrict to entries carrying any of these tags").Items(-1, 20),
				projectRef(),
			}},
			Aliases: map[string]string{
				"search":      "query",
				"q":           "query",
				"contextType": "type",
			},
			Examples: []Example{
				{Description: "Find queue decisions", Arguments: map[string]any{"query": "which queue library?", "limit": 3}},
			},
		},
		{
			Name:        "context_get_recent",
			Description: "List the most recently stored contexts",
			Category:    CategoryContext,
			Schema: Schema{Fields: []Field{
				Integer("limit", "Maximum results").Range(1, 50).WithDefault(5),
				projectRef(),
			}},
			Examples: []Example{
				{Description: "What was stored lately", Arguments: map[string]any{"limit": 5}},
			},
		},
		{
			Name:        "context_stats",
			Description: "Count stored contexts by type",
			Category:    CategoryContext,
			Schema: Schema{Fields: []Field{
				projectRef(),
			}},
			Examples: []Example{
				{Description: "Context totals for the current project", Arguments: map[string]any{}},
			},
		},

		// ------------------------------------------------------------------
		// Decisions
		// ------------------------------------------------------------------
		{
			Name:        "decision_record",
			Description: "Record a technical decision with rationale and alternatives",
			Category:    CategoryDecisions,
			Schema: Schema{Fields: []Field{
				String("title", "Short decision title").Req().Len(1, 500),
				String("description", "What was decided").Req().Len(1, 50000),
				String("rationale", "Why this option won").Req().Len(1, 50000),
				Enum("impactLevel", "How far the consequences reach", impactValues()...).Req(),
				Enum("decisionType", "Domain category", models.DecisionTypes...).Req(),
				StringArray("alternativesConsidered", "Options that were rejected").Items(-1, 20),
				String("problemStatement", "The problem being solved").Len(-1, 50000),
				projectRef(),
			}},
			Aliases: map[string]string{
				"reasoning": "rationale",
				"reason":    "rationale",
				"why":       "rationale",
				"impact":    "impactLevel",
				"severity":  "impactLevel",
				"priority":  "impactLevel",
				"options":      "alternativesConsidered",
				"alternatives": "alternativesConsidered",
				"choices":      "alternativesConsidered",
			},
			Examples: []Example{
				{Description: "Record a library choice", Arguments: map[string]any{
					"title":        "Adopt BullMQ",
					"description":  "Use BullMQ for background job queues",
					"reasoning":    "Mature, Redis-backed, good retry semantics",
					"impact":       "high",
					"decisionType": "library",
					"alternatives": []string{"Celery", "hand-rolled worker"},
				}},
			},
		},
		{
			Name:        "decision_search",
			Description: "Search recorded decisions by text and filters",
			Category:    CategoryDecisions,
			Schema: Schema{Fields: []Field{
				String("query", "Text matched against title, description, and rationale").Len(-1, 10000),
				Enum("impactLevel", "Restrict by impact", impactValues()...),
				Enum("status", "Restrict by status", decisionStatusValues()...),
				Enum("decisionType", "Restrict by category", models.DecisionTypes...),
				Integer("limit", "Maximum results").Range(1, 100).WithDefault(20),
				projectRef(),
			}},
			Aliases: map[string]string{
				"q":      "query",
				"impact": "impactLevel",
			},
			Examples: []Example{
				{Description: "High-impact decisions about queues", Arguments: map[string]any{"query": "queue", "impactLevel": "high"}},
			},
		},
		{
			Name:        "decision_update",
			Description: "Update a decision's status or record its outcome",
			Category:    CategoryDecisions,
			Schema: Schema{Fields: []Field{
				String("id", "Decision id").Req(),
				Enum("status", "New lifecycle status", decisionStatusValues()...),
				String("supersededBy", "Id of the decision that replaces this one; required when status is superseded"),
				String("outcome", "How the decision worked out").Len(-1, 50000),
				String("lessons", "Lessons learned").Len(-1, 50000),
				projectRef(),
			}},
			Examples: []Example{
				{Description: "Mark a decision superseded", Arguments: map[string]any{"id": "6f0c9b1e-6e4c-4c7a-9d1e-2f8b51a0c001", "status": "superseded", "supersededBy": "6f0c9b1e-6e4c-4c7a-9d1e-2f8b51a0c002"}},
			},
		},
		{
			Name:        "decision_stats",
			Description: "Count decisions by status and impact",
			Category:    CategoryDecisions,
			Schema: Schema{Fields: []Field{
				projectRef(),
			}},
			Examples: []Example{
				{Description: "Decision totals", Arguments: map[string]any{}},
			},
		},

		// ------------------------------------------------------------------
		// Tasks
		// ------------------------------------------------------------------
		{
			Name:        "task_create",
			Description: "Create a coordination task",
			Category:    CategoryTasks,
			Schema: Schema{Fields: []Field{
				String("title", "Task title").Req().Len(1, 500),
				String("description", "What needs doing").Len(-1, 50000),
				String("type", "Free-form task type").Len(-1, 100),
				Enum("priority", "Urgency", taskPriorityValues()...).WithDefault("medium"),
				String("assignedTo", "Agent or person responsible").Len(-1, 255),
				StringArray("dependsOn", "Ids of tasks that must finish first").Items(-1, 50),
				projectRef(),
			}},
			Aliases: map[string]string{
				"assignee":     "assignedTo",
				"dependencies": "dependsOn",
			},
			Examples: []Example{
				{Description: "Create a task with a dependency", Arguments: map[string]any{"title": "Wire retry metrics", "priority": "high", "dependsOn": []string{"5b2a1c3d-0000-4000-8000-000000000001"}}},
			},
		},
		{
			Name:        "task_list",
			Description: "List the project's tasks",
			Category:    CategoryTasks,
			Schema: Schema{Fields: []Field{
				Enum("status", "Restrict by status", taskStatusValues()...),
				String("assignedTo", "Restrict by assignee").Len(-1, 255),
				Integer("limit", "Maximum results").Range(1, 200).WithDefault(50),
				projectRef(),
			}},
			Aliases: map[string]string{
				"assignee": "assignedTo",
			},
			Examples: []Example{
				{Description: "Open work", Arguments: map[string]any{"status": "todo"}},
			},
		},
		{
			Name:        "task_update",
			Description: "Update a task's status, priority, assignee, or dependencies",
			Category:    CategoryTasks,
			Schema: Schema{Fields: []Field{
				String("id", "Task id").Req(),
				Enum("status", "New status", taskStatusValues()...),
				Enum("priority", "New urgency", taskPriorityValues()...),
				String("assignedTo", "New assignee").Len(-1, 255),
				StringArray("dependsOn", "Replacement dependency list").Items(-1, 50),
				projectRef(),
			}},
			Aliases: map[string]string{
				"assignee":     "assignedTo",
				"dependencies": "dependsOn",
			},
			Examples: []Example{
				{Description: "Start a task", Arguments: map[string]any{"id": "5b2a1c3d-0000-4000-8000-000000000002", "status": "in_progress"}},
			},
		},
		{
			Name:        "task_details",
			Description: "Show one task with the status of its dependencies",
			Category:    CategoryTasks,
			Schema: Schema{Fields: []Field{
				String("id", "Task id").Req(),
				projectRef(),
			}},
			Examples: []Example{
				{Description: "Inspect a task", Arguments: map[string]any{"id": "5b2a1c3d-0000-4000-8000-000000000002"}},
			},
		},
	})
}
