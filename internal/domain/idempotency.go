package domain

// Idempotency records that an RSVP submission carrying an Idempotency-Key was
// already accepted for a slug. It is stored as a Setting under
// IdempotencyKey(slug, key) so both local backends can hold it, and lets a
// retried request return the originally queued RSVP instead of queueing a
// duplicate.
type Idempotency struct {
	Slug      string `json:"slug"`
	Key       string `json:"key"`
	RSVPID    uint64 `json:"rsvpId"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

// IdempotencyKey namespaces an idempotency record in the settings collection.
// Slugs never contain ':', so the first ':' after the prefix always ends the
// slug even when key contains ':' itself.
func IdempotencyKey(slug, key string) string { return "idem:" + slug + ":" + key }

// Matches reports whether the record belongs to (slug, key).
func (i Idempotency) Matches(slug, key string) bool {
	return i.Slug == slug && i.Key == key
}

// Expired reports whether the record is no longer valid at nowMillis.
func (i Idempotency) Expired(nowMillis int64) bool {
	return i.ExpiresAt <= nowMillis
}
