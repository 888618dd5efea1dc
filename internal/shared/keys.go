package shared

import "fmt"

// PermCacheKey builds the redis key caching a user's derived permission
// codes.
func PermCacheKey(userID int64) string {
	return fmt.Sprintf("authz:perms:%d", userID)
}

// TokenKey builds the redis key holding one bearer-token session.
func TokenKey(token string) string {
	return fmt.Sprintf("auth:token:%s", token)
}
