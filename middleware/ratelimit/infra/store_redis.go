package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"booking-gatekeeper/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// admitScript executa poda, contagem, verificação e inserção das janelas num único comando.
//
// KEYS[i]: sorted set da janela i (score = unix ms).
// ARGV[1]: agora (ms); ARGV[2]: membro único desta requisição.
// Para cada janela i: ARGV[3i] = corte exclusivo "(ms", ARGV[3i+1] = limite, ARGV[3i+2] = tamanho (ms).
// Retorno: {admitido (0/1), janela estourada (1-based, 0 = nenhuma), contagens...}.
var admitScript = redis.NewScript(`
local now = ARGV[1]
local member = ARGV[2]
local counts = {}

for i = 1, #KEYS do
	redis.call('ZREMRANGEBYSCORE', KEYS[i], '-inf', ARGV[3 * i])
	counts[i] = redis.call('ZCARD', KEYS[i])
end

for i = 1, #KEYS do
	if counts[i] >= tonumber(ARGV[3 * i + 1]) then
		return {0, i, unpack(counts)}
	end
end

for i = 1, #KEYS do
	redis.call('ZADD', KEYS[i], now, member)
	redis.call('PEXPIRE', KEYS[i], ARGV[3 * i + 2])
end

return {1, 0, unpack(counts)}
`)

// RedisStore guarda as janelas em sorted sets compartilhados entre instâncias.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ domain.WindowStore = (*RedisStore)(nil)

type RedisStoreOption func(*RedisStore)

func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func NewRedisStore(rdb redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{rdb: rdb}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit implementa domain.WindowStore.
func (s *RedisStore) Admit(ctx context.Context, key domain.Key, now time.Time, windows []domain.Window) (domain.Admission, error) {
	if s == nil || s.rdb == nil {
		return domain.Admission{}, domain.ErrStoreUnavailable
	}

	nowMs := now.UnixMilli()
	keys := make([]string, len(windows))
	args := make([]interface{}, 0, 2+3*len(windows))
	args = append(args, nowMs, strconv.FormatInt(nowMs, 10)+"-"+uuid.NewString())
	for i, w := range windows {
		keys[i] = s.windowKey(key, w.Name)
		args = append(args,
			"("+strconv.FormatInt(nowMs-w.Size.Milliseconds(), 10),
			w.Limit,
			w.Size.Milliseconds(),
		)
	}

	raw, err := admitScript.Run(ctx, s.rdb, keys, args...).Result()
	if err != nil {
		return domain.Admission{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return parseAdmission(raw, len(windows))
}

// Counts implementa domain.WindowStore sem podar nada.
func (s *RedisStore) Counts(ctx context.Context, key domain.Key, now time.Time, windows []domain.Window) ([]int, error) {
	if s == nil || s.rdb == nil {
		return nil, domain.ErrStoreUnavailable
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(windows))
	for i, w := range windows {
		min := strconv.FormatInt(now.Add(-w.Size).UnixMilli(), 10)
		cmds[i] = pipe.ZCount(ctx, s.windowKey(key, w.Name), min, "+inf")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	counts := make([]int, len(windows))
	for i, cmd := range cmds {
		counts[i] = int(cmd.Val())
	}
	return counts, nil
}

// Reset implementa domain.WindowStore.
func (s *RedisStore) Reset(ctx context.Context, key domain.Key, windows []domain.Window) error {
	if s == nil || s.rdb == nil {
		return domain.ErrStoreUnavailable
	}

	keys := make([]string, len(windows))
	for i, w := range windows {
		keys[i] = s.windowKey(key, w.Name)
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// Ping verifica se o Redis responde.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.rdb == nil {
		return domain.ErrStoreUnavailable
	}
	return s.rdb.Ping(ctx).Err()
}

// windowKey segue o layout "rate_limit:{id}" / "burst_limit:{id}". O hash tag mantém as
// chaves da mesma identidade no mesmo slot, exigência do script em Redis Cluster.
func (s *RedisStore) windowKey(key domain.Key, name domain.WindowName) string {
	var segment string
	switch name {
	case domain.Sustained:
		segment = "rate_limit"
	case domain.Burst:
		segment = "burst_limit"
	default:
		segment = string(name) + "_limit"
	}

	k := segment + ":{" + string(key) + "}"
	if s.prefix != "" {
		k = s.prefix + ":" + k
	}
	return k
}

func parseAdmission(raw interface{}, n int) (domain.Admission, error) {
	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 2+n {
		return domain.Admission{}, fmt.Errorf("%w: unexpected script reply %v", domain.ErrStoreUnavailable, raw)
	}

	ints := make([]int64, len(vals))
	for i, v := range vals {
		iv, ok := v.(int64)
		if !ok {
			return domain.Admission{}, fmt.Errorf("%w: unexpected script reply %v", domain.ErrStoreUnavailable, raw)
		}
		ints[i] = iv
	}

	adm := domain.Admission{
		Allowed:  ints[0] == 1,
		Exceeded: int(ints[1]) - 1,
		Counts:   make([]int, n),
	}
	for i := 0; i < n; i++ {
		adm.Counts[i] = int(ints[2+i])
	}
	return adm, nil
}
