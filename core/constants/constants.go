package constants

import "time"

const (
	ContextActorKey = "actor"

	// Token refresh is triggered this long before the stored expiry.
	TokenRefreshBuffer = 5 * time.Minute

	RefreshLockTTL = 30 * time.Second
	// A shared refresh stops before another process may take over the lock.
	RefreshTimeout = 20 * time.Second
	SyncLockTTL    = 5 * time.Minute

	HealthySyncWindow = 24 * time.Hour

	DefaultSyncPastDays   = 7
	DefaultSyncFutureDays = 90

	CacheKeyOAuthState     = "calendar:oauth:state:%s"
	CacheKeyOAuthUserIndex = "calendar:oauth:user:%s"
	CacheKeyRefreshLock    = "calendar:lock:refresh:%s"
	CacheKeySyncLock       = "calendar:lock:sync:%s"
)
