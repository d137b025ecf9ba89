package main

// Request and response models for the rule dry-run server.

// evaluateRequest asks for one phase to be evaluated against a
// hand-written context.
type evaluateRequest struct {
	Phase string         `json:"phase" example:"deal_breakers"`
	Facts map[string]any `json:"facts"`
}

// evaluateResponse mirrors what a batch run would record for the same
// context: the match count, the matched actions in order, and the
// joined comment string.
type evaluateResponse struct {
	Phase   string   `json:"phase" example:"deal_breakers"`
	Matched int      `json:"matched" example:"1"`
	Actions []string `json:"actions"`
	Comment string   `json:"comment" example:"minor"`
}

// phaseSummary describes one loaded phase.
type phaseSummary struct {
	Key   string `json:"key" example:"deal_breakers"`
	Rules int    `json:"rules" example:"3"`
}

// phasesResponse lists the loaded phases in load order.
type phasesResponse struct {
	Phases []phaseSummary `json:"phases"`
}

// errorResponse carries a human-readable error.
type errorResponse struct {
	Error string `json:"error" example:"unknown phase"`
}
