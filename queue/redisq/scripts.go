package redisq

import "github.com/redis/go-redis/v9"

// promoteScript moves due delayed jobs onto the wait list.
// KEYS[1] delayed zset, KEYS[2] wait list. ARGV[1] now (unix ms),
// ARGV[2] batch limit. Returns the number of jobs promoted.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('RPUSH', KEYS[2], id)
end
return #due
`)

// claimScript pops the head of the wait list and records it as active.
// KEYS[1] wait list, KEYS[2] active zset. ARGV[1] now (unix ms).
// Returns the claimed job id or false.
var claimScript = redis.NewScript(`
local id = redis.call('LPOP', KEYS[1])
if not id then
  return false
end
redis.call('ZADD', KEYS[2], ARGV[1], id)
return id
`)

// reclaimScript moves stalled active jobs back onto the wait list.
// KEYS[1] active zset, KEYS[2] wait list. ARGV[1] stall cutoff (unix ms),
// ARGV[2] batch limit. Returns the number of jobs reclaimed.
var reclaimScript = redis.NewScript(`
local stalled = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(stalled) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('RPUSH', KEYS[2], id)
end
return #stalled
`)
