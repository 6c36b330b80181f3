package types

// SuccessEnvelope wraps every successful API payload, from cart views to
// order stats, under a data key.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the wire shape of a failed request; Details carries
// structured context such as checkout validation issues.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
