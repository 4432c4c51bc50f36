package redis

const (
	// createConfigScript atomically creates a config unless the ID is taken,
	// keeping the index set in step with the record key.
	createConfigScript = `
local config_key = KEYS[1]   -- focusmunk:config:{id}
local index_key = KEYS[2]    -- focusmunk:configs

local id = ARGV[1]
local data = ARGV[2]

if redis.call('EXISTS', config_key) == 1 then
  return 0
end

redis.call('SET', config_key, data)
redis.call('SADD', index_key, id)
return 1
`

	// deleteConfigScript atomically removes a config and its index entry.
	deleteConfigScript = `
local config_key = KEYS[1]   -- focusmunk:config:{id}
local index_key = KEYS[2]    -- focusmunk:configs

local id = ARGV[1]

local deleted = redis.call('DEL', config_key)
redis.call('SREM', index_key, id)
return deleted
`
)
