package entities

// Principal is the authenticated user as seen by the dashboard. The
// dashboard only ever uses the ID; how the user signed in is the
// authenticator's business.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}
