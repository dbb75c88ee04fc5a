package redisbroker

import (
	"context"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/mahaj/groupchat/pkg/realtime"
)

// Presence counts live sessions per user in the hash presence:<group>, so
// sessions on different gateways add up.
type Presence struct {
	rdb *redis.Client
}

var _ realtime.Presence = (*Presence)(nil)

func NewPresence(rdb *redis.Client) *Presence {
	return &Presence{rdb: rdb}
}

func presenceKey(groupID string) string { return "presence:" + groupID }

func (p *Presence) Add(ctx context.Context, groupID, userID string) error {
	return p.rdb.HIncrBy(ctx, presenceKey(groupID), userID, 1).Err()
}

func (p *Presence) Remove(ctx context.Context, groupID, userID string) error {
	n, err := p.rdb.HIncrBy(ctx, presenceKey(groupID), userID, -1).Result()
	if err != nil {
		return err
	}
	if n <= 0 {
		return p.rdb.HDel(ctx, presenceKey(groupID), userID).Err()
	}
	return nil
}

func (p *Presence) Online(ctx context.Context, groupID string) ([]string, error) {
	counts, err := p.rdb.HGetAll(ctx, presenceKey(groupID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(counts))
	for user, v := range counts {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			out = append(out, user)
		}
	}
	sort.Strings(out)
	return out, nil
}
