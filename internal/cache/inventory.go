package cache

import (
	"context"
	"strconv"
	"time"
)

// Key families. Each key is "<family>:<id>".
const (
	userFamily    = "user"
	ticketFamily  = "ws_ticket"
	revokedFamily = "revoked_jti"
	animeFamily   = "anime"
)

const (
	UserTTL     = 5 * time.Minute
	WSTicketTTL = 30 * time.Second
	AnimeTTL    = 24 * time.Hour
)

func UserKey(userID uint) string {
	return userFamily + ":" + strconv.FormatUint(uint64(userID), 10)
}

// WSTicketKey addresses a one-shot websocket ticket.
func WSTicketKey(ticket string) string {
	return ticketFamily + ":" + ticket
}

// RevokedKey addresses a revoked token id; it lives until the token expires.
func RevokedKey(jti string) string {
	return revokedFamily + ":" + jti
}

func AnimeKey(id int) string {
	return animeFamily + ":" + strconv.Itoa(id)
}

// Invalidate deletes keys. Errors are ignored: a stale entry expires on its own.
func Invalidate(ctx context.Context, keys ...string) {
	if client == nil || len(keys) == 0 {
		return
	}
	client.Del(ctx, keys...)
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}
