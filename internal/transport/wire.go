package transport

// JSON bodies of the log sink HTTP API.

const (
	CodeInvalidSequenceToken = "InvalidSequenceToken"
	CodeDataAlreadyAccepted  = "DataAlreadyAccepted"
	CodeInvalidParameter     = "InvalidParameter"
	CodeUnauthorized         = "Unauthorized"
	CodeThrottling           = "Throttling"
	CodeInternal             = "Internal"

	// HeaderAPIKey carries the sink credential.
	HeaderAPIKey = "X-Api-Key"
)

type PutLogEventsBody struct {
	LogEvents     []LogEvent `json:"logEvents"`
	SequenceToken string     `json:"sequenceToken,omitempty"`
}

type PutLogEventsResult struct {
	NextSequenceToken string `json:"nextSequenceToken"`
}

type ErrorBody struct {
	Code                  string `json:"code"`
	Message               string `json:"message"`
	ExpectedSequenceToken string `json:"expectedSequenceToken,omitempty"`
}
