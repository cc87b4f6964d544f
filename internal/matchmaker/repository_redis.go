package matchmaker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRepo struct {
	rdb *redis.Client
}

func NewRedisRepo(rdb *redis.Client) Repo {
	return &redisRepo{rdb: rdb}
}

// key layout:
//
//	list: mm:pool:{variant}:{stake}:{seats}  -> userIDs in join order
//	kv  : mm:player:{userID}                 -> "variant:stake:seats" (locates the pool on cancel)
//	ttl on the player key guards against abandoned entries
func poolKey(variant string, stake int64, seats int) string {
	return fmt.Sprintf("mm:pool:%s:%d:%d", variant, stake, seats)
}
func playerKey(userID string) string {
	return fmt.Sprintf("mm:player:%s", userID)
}

func (r *redisRepo) Enqueue(ctx context.Context, variant string, stake int64, seats int, userID string, ttlSeconds int) error {
	p := r.rdb.Pipeline()
	p.RPush(ctx, poolKey(variant, stake, seats), userID)
	p.Set(ctx, playerKey(userID), fmt.Sprintf("%s:%d:%d", variant, stake, seats), time.Duration(ttlSeconds)*time.Second)
	_, err := p.Exec(ctx)
	return err
}

// popScript removes the n oldest entries only when the pool holds at
// least n. All or nothing, so concurrent calls can never split a
// table between them.
var popScript = redis.NewScript(`
    if redis.call("LLEN", KEYS[1]) < tonumber(ARGV[1]) then
        return {}
    end
    local out = {}
    for i = 1, tonumber(ARGV[1]) do
        out[i] = redis.call("LPOP", KEYS[1])
    end
    return out
`)

func (r *redisRepo) PopOldest(ctx context.Context, variant string, stake int64, seats int, n int) ([]string, error) {
	key := poolKey(variant, stake, seats)
	res, err := popScript.Run(ctx, r.rdb, []string{key}, n).StringSlice()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(res) > 0 {
		p := r.rdb.Pipeline()
		for _, id := range res {
			p.Del(ctx, playerKey(id))
		}
		_, _ = p.Exec(ctx)
	}
	return res, nil
}

func (r *redisRepo) Remove(ctx context.Context, userID string) error {
	kv, err := r.rdb.Get(ctx, playerKey(userID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}

	parts := strings.SplitN(kv, ":", 3)
	if len(parts) != 3 {
		_ = r.rdb.Del(ctx, playerKey(userID)).Err()
		return nil
	}
	stake, err1 := strconv.ParseInt(parts[1], 10, 64)
	seats, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil {
		_ = r.rdb.Del(ctx, playerKey(userID)).Err()
		return nil
	}

	poolK := poolKey(parts[0], stake, seats)
	playerK := playerKey(userID)

	// KEYS[1] = playerKey, KEYS[2] = poolKey, ARGV[1] = userID
	script := `
        redis.call("DEL", KEYS[1])
        redis.call("LREM", KEYS[2], 1, ARGV[1])
        if redis.call("LLEN", KEYS[2]) == 0 then
            redis.call("DEL", KEYS[2])
        end
        return 1
    `
	if err := r.rdb.Eval(ctx, script, []string{playerK, poolK}, userID).Err(); err != nil {
		// non-atomic fallback for redis builds without scripting
		p := r.rdb.Pipeline()
		p.LRem(ctx, poolK, 1, userID)
		p.Del(ctx, playerK)
		if _, execErr := p.Exec(ctx); execErr != nil {
			return execErr
		}
		if n, _ := r.rdb.LLen(ctx, poolK).Result(); n == 0 {
			_ = r.rdb.Del(ctx, poolK).Err()
		}
	}
	return nil
}

func (r *redisRepo) Count(ctx context.Context, variant string, stake int64, seats int) (int64, error) {
	return r.rdb.LLen(ctx, poolKey(variant, stake, seats)).Result()
}

func (r *redisRepo) SaveRoom(ctx context.Context, room *Room, ttlSeconds int) error {
	key := fmt.Sprintf("mm:room:%s", room.ID)
	data, _ := json.Marshal(room)
	p := r.rdb.Pipeline()
	p.Set(ctx, key, data, time.Duration(ttlSeconds)*time.Second)
	for _, id := range room.Players {
		p.Set(ctx, fmt.Sprintf("mm:playerRoom:%s", id), room.ID, time.Duration(ttlSeconds)*time.Second)
	}
	_, err := p.Exec(ctx)
	return err
}

// ClearPlayers drops the room mapping for players whose session ended,
// so they can queue again right away instead of waiting out the TTL.
func (r *redisRepo) ClearPlayers(ctx context.Context, players []string) error {
	if len(players) == 0 {
		return nil
	}
	p := r.rdb.Pipeline()
	for _, id := range players {
		p.Del(ctx, fmt.Sprintf("mm:playerRoom:%s", id))
	}
	_, err := p.Exec(ctx)
	return err
}

func (r *redisRepo) GetPlayerRoom(ctx context.Context, userID string) (string, error) {
	val, err := r.rdb.Get(ctx, fmt.Sprintf("mm:playerRoom:%s", userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}
