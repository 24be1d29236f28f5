package redis

import "github.com/redis/go-redis/v9"

const (
	// createSessionScript atomically stores a new session and indexes it by device
	createSessionScript = `
local session_key = KEYS[1]     -- {prefix}:session:{sessionID}
local device_index = KEYS[2]    -- {prefix}:device:{deviceID}:sessions

local session_id = ARGV[1]
local device_id = ARGV[2]
local start_time = ARGV[3]
local start_ms = ARGV[4]
local summary = ARGV[5]
local mood_score = ARGV[6]

if redis.call('EXISTS', session_key) == 1 then
  return redis.error_reply('EXISTS')
end

redis.call('HSET', session_key,
  'id', session_id,
  'device_id', device_id,
  'start_time', start_time,
  'start_ms', start_ms,
  'end_time', start_time,
  'end_ms', start_ms,
  'summary', summary,
  'mood_score', mood_score,
  'mood_label', ''
)

redis.call('SADD', device_index, session_id)

return 'OK'
`

	// updateFinalScript atomically overwrites the flushed fields of a session.
	// The end time is clamped to the start time so end >= start always holds.
	updateFinalScript = `
local session_key = KEYS[1]     -- {prefix}:session:{sessionID}

local end_time = ARGV[1]
local end_ms = tonumber(ARGV[2])
local summary = ARGV[3]
local mood_score = ARGV[4]
local mood_label = ARGV[5]

if redis.call('EXISTS', session_key) == 0 then
  return redis.error_reply('NOT_FOUND')
end

local start_ms = tonumber(redis.call('HGET', session_key, 'start_ms'))
if start_ms ~= nil and end_ms < start_ms then
  end_time = redis.call('HGET', session_key, 'start_time')
  end_ms = start_ms
end

redis.call('HSET', session_key,
  'end_time', end_time,
  'end_ms', end_ms,
  'summary', summary,
  'mood_score', mood_score
)

if mood_label ~= '' then
  redis.call('HSET', session_key, 'mood_label', mood_label)
end

return 'OK'
`

	// registerDeviceScript creates a device record or bumps its last_seen
	registerDeviceScript = `
local device_key = KEYS[1]      -- {prefix}:device:{deviceID}

local device_id = ARGV[1]
local now = ARGV[2]

redis.call('HSETNX', device_key, 'device_id', device_id)
redis.call('HSETNX', device_key, 'created_at', now)
redis.call('HSET', device_key, 'last_seen', now)

return 'OK'
`
)

var (
	createSession  = redis.NewScript(createSessionScript)
	updateFinal    = redis.NewScript(updateFinalScript)
	registerDevice = redis.NewScript(registerDeviceScript)
)
