package dynamo

// DynamoDB attribute names of a verification item. Using constants prevents
// silent runtime bugs caused by key typos in expressions.
const (
	fieldIdentity    = "identity"
	fieldChallengeID = "challenge_id"
	fieldConsumed    = "consumed"
	fieldClaimed     = "claimed"
	fieldExpiresAt   = "expires_at" // epoch seconds, TTL attribute
	fieldExpiresAtMs = "expires_at_ms"
)
