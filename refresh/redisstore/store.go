// Package redisstore provides the Redis-backed refresh token store used by
// multi-node deployments. Records are Redis hashes keyed by token digest
// with a per-user set as secondary index; mutating operations run as Lua
// scripts so that the Active to Revoked transition stays atomic under
// concurrent rotation.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swapstation/authkit/refresh"
)

const defaultPrefix = "authkit"

const (
	revokeStatusMissing int64 = -1
	revokeStatusExpired int64 = -2
	revokeStatusAlready int64 = 0
	revokeStatusRevoked int64 = 1
)

const saveScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "user", ARGV[1], "iat", ARGV[2], "exp", ARGV[3], "revoked", "0")
redis.call("PEXPIRE", KEYS[1], ARGV[4])
redis.call("SADD", KEYS[2], ARGV[5])
return 1
`

var saveLua = redis.NewScript(saveScript)

const revokeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return 0
end
local exp = tonumber(redis.call("HGET", KEYS[1], "exp"))
if not exp or exp <= tonumber(ARGV[1]) then
  return -2
end
redis.call("HSET", KEYS[1], "revoked", "1")
return 1
`

var revokeLua = redis.NewScript(revokeScript)

// Store implements [refresh.Store] on a Redis client.
//
// Store instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Store struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// New returns a Store over the client. All keys are namespaced under the
// prefix; an empty prefix selects "authkit".
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{
		rdb:    client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *Store) tokenKey(hash string) string {
	return s.prefix + ":rt:" + hash
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":rtuser:" + userID
}

// Save persists a new Active record. The Redis key carries a TTL matching
// the record expiry, so even without sweeping a record cannot outlive its
// token.
func (s *Store) Save(ctx context.Context, rec refresh.Record) error {
	now := s.now()
	ttl := rec.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("refresh record expires in the past")
	}

	hash := refresh.HashToken(rec.Token)
	result, err := saveLua.Run(ctx, s.rdb,
		[]string{s.tokenKey(hash), s.userKey(rec.UserID)},
		rec.UserID,
		strconv.FormatInt(rec.IssuedAt.UnixMilli(), 10),
		strconv.FormatInt(rec.ExpiresAt.UnixMilli(), 10),
		strconv.FormatInt(ttl.Milliseconds(), 10),
		hash,
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	if created, ok := result.(int64); !ok || created != 1 {
		return refresh.ErrDuplicate
	}
	return nil
}

// Validate reports whether the token is currently Active.
func (s *Store) Validate(ctx context.Context, token string) (bool, error) {
	hash := refresh.HashToken(token)

	vals, err := s.rdb.HMGet(ctx, s.tokenKey(hash), "revoked", "exp").Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}

	revoked, exp, ok := parseState(vals)
	if !ok {
		return false, nil
	}
	return !revoked && exp.After(s.now()), nil
}

// Owner returns the holder of an unexpired token, revoked or not. Revoked
// records stay resolvable until expiry so that a later Revoke reporting
// false can be recognized as reuse of a rotated token.
func (s *Store) Owner(ctx context.Context, token string) (string, error) {
	hash := refresh.HashToken(token)

	vals, err := s.rdb.HMGet(ctx, s.tokenKey(hash), "user", "revoked", "exp").Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	if len(vals) != 3 {
		return "", refresh.ErrNotFound
	}

	user, _ := vals[0].(string)
	_, exp, ok := parseState(vals[1:])
	if user == "" || !ok || !exp.After(s.now()) {
		return "", refresh.ErrNotFound
	}
	return user, nil
}

// Revoke retires the token through a Lua compare-and-swap, reporting
// whether this call performed the Active to Revoked transition. Exactly one
// of any set of concurrent callers observes true.
func (s *Store) Revoke(ctx context.Context, token string) (bool, error) {
	hash := refresh.HashToken(token)

	status, err := s.runRevoke(ctx, hash)
	if err != nil {
		return false, err
	}
	return status == revokeStatusRevoked, nil
}

// RevokeAllForUser retires every Active token of the user. Index entries
// whose records were already reaped by Redis TTL are pruned along the way.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	hashes, err := s.rdb.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}

	revoked := 0
	for _, hash := range hashes {
		status, err := s.runRevoke(ctx, hash)
		if err != nil {
			return revoked, err
		}
		switch status {
		case revokeStatusRevoked:
			revoked++
		case revokeStatusMissing:
			if err := s.rdb.SRem(ctx, s.userKey(userID), hash).Err(); err != nil {
				return revoked, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
			}
		}
	}
	return revoked, nil
}

// Sweep walks the token keyspace, deletes records whose expiry has passed,
// and prunes their user index entries.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	match := s.prefix + ":rt:*"
	now := s.now()

	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, match, 256).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
		}

		for _, key := range keys {
			vals, err := s.rdb.HMGet(ctx, key, "exp", "user").Result()
			if err != nil {
				return removed, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
			}
			if len(vals) != 2 {
				continue
			}
			expRaw, _ := vals[0].(string)
			user, _ := vals[1].(string)
			expMilli, parseErr := strconv.ParseInt(expRaw, 10, 64)
			if parseErr != nil {
				continue
			}
			if time.UnixMilli(expMilli).After(now) {
				continue
			}

			if err := s.rdb.Del(ctx, key).Err(); err != nil {
				return removed, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
			}
			if user != "" {
				hash := strings.TrimPrefix(key, s.prefix+":rt:")
				if err := s.rdb.SRem(ctx, s.userKey(user), hash).Err(); err != nil {
					return removed, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
				}
			}
			removed++
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (s *Store) runRevoke(ctx context.Context, hash string) (int64, error) {
	result, err := revokeLua.Run(ctx, s.rdb,
		[]string{s.tokenKey(hash)},
		strconv.FormatInt(s.now().UnixMilli(), 10),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	status, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected revoke script result %T", refresh.ErrStoreUnavailable, result)
	}
	return status, nil
}

func parseState(vals []interface{}) (revoked bool, exp time.Time, ok bool) {
	if len(vals) != 2 {
		return false, time.Time{}, false
	}
	revokedRaw, okRevoked := vals[0].(string)
	expRaw, okExp := vals[1].(string)
	if !okRevoked || !okExp {
		return false, time.Time{}, false
	}
	expMilli, err := strconv.ParseInt(expRaw, 10, 64)
	if err != nil {
		return false, time.Time{}, false
	}
	return revokedRaw == "1", time.UnixMilli(expMilli), true
}
