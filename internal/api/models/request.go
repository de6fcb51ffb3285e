package models

// SubmitRequestInput is the body of POST /v1/requests.
type SubmitRequestInput struct {
	// Type is one of "delete", "rectify", "complaint".
	Type string `json:"type"`

	// Email identifies the subject. Ignored for authenticated callers.
	Email string `json:"email,omitempty"`

	// Data is the free-text payload required by rectify and complaint.
	Data string `json:"data,omitempty"`
}

// SubmitRequestResponse acknowledges a submission.
// The token itself is only ever sent by email.
type SubmitRequestResponse struct {
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	ExpiresAt Timestamp `json:"expiresAt,omitempty"`
}

// ConfirmRequestInput is the body of POST /v1/requests/confirmations.
type ConfirmRequestInput struct {
	Type  string `json:"type"`
	Email string `json:"email"`
	Token string `json:"token"`
}

// ConfirmRequestResponse reports the outcome of a confirmation.
type ConfirmRequestResponse struct {
	Type    string `json:"type"`
	Outcome string `json:"outcome"`
	Message string `json:"message"`
}

// SubmissionStatusPending is the status returned after a successful submission.
const SubmissionStatusPending = "PENDING_CONFIRMATION"
