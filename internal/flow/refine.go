package flow

// Refine flow identifiers.
const (
	RefineFlowName   = "refine-description"
	RefinePromptSlug = "refine-description"
)

// RefineInput is a project description and the tone to rewrite it in.
type RefineInput struct {
	Description     string `json:"description" jsonschema:"minLength=20,maxLength=2000"`
	TonePreferences string `json:"tonePreferences" jsonschema:"minLength=3,maxLength=100"`
}

// RefineOutput is the rewritten description.
type RefineOutput struct {
	RefinedDescription string `json:"refinedDescription" jsonschema:"description=The refined project description"`
}

// RefineFlow rewrites project descriptions.
type RefineFlow = Flow[RefineInput, RefineOutput]

// NewRefineFlow builds the refine flow. Input is validated before the rate
// check so malformed requests do not consume quota.
func NewRefineFlow(deps Deps) (*RefineFlow, error) {
	return New(Definition[RefineInput, RefineOutput]{
		Name:       RefineFlowName,
		PromptSlug: RefinePromptSlug,
		Order:      ValidateFirst,
		Variables: func(in RefineInput) map[string]string {
			return map[string]string{
				"description": in.Description,
				"tone":        in.TonePreferences,
			}
		},
	}, deps)
}
