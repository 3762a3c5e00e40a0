package topic

const (
	// Wildcard matches exactly one level, e.g. the vehicle ID in
	// "crossway/v1/request/+".
	Wildcard = "+"

	// MultiWildcard matches the remaining levels. Only valid as the last level.
	MultiWildcard = "#"

	// SharePrefix starts a shared subscription: $share/{group}/{filter}.
	SharePrefix = "$share/"
)
