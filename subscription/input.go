package subscription

// Input carries the caller-supplied fields for creating or updating a
// subscription. Zero-valued fields are left unchanged on update.
type Input struct {
	EventType string
	TargetURL string
	Active    *bool
}
