package httpx

type ctxKey string

const (
	// CtxKeyUserID carries the authenticated user's id.
	CtxKeyUserID ctxKey = "user_id"
	// CtxKeySessionID carries the id of the session the caller presented.
	CtxKeySessionID ctxKey = "session_id"
	// CtxKeyFingerprint carries the caller's device fingerprint.
	CtxKeyFingerprint ctxKey = "fingerprint"
)
