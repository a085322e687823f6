package zfs

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Pool is the subset of `zpool list`/`zpool get` output the datasets
// registry (internal/datasets) needs to decide whether a pool carries
// the org.freebsd.ioc:active user property.
type Pool struct {
	z      *zfs
	Name   string
	Health string
	GUID   string
}

// Pools lists every imported zpool.
func (z *zfs) Pools() ([]*Pool, error) {
	out, err := z.run(nil, nil, "zpool", "list", "-H", "-o", "name,health,guid")
	if err != nil {
		return nil, err
	}

	pools := make([]*Pool, 0, len(out))
	for _, fields := range out {
		if len(fields) < 3 {
			continue
		}
		pools = append(pools, &Pool{z: z, Name: fields[0], Health: fields[1], GUID: fields[2]})
	}

	return pools, nil
}

// GetPoolProperty reads a single zpool(8) property, user properties
// (colon-namespaced) included.
func (z *zfs) GetPoolProperty(pool, key string) (string, error) {
	out, err := z.run(nil, nil, "zpool", "get", "-H", "-o", "value", key, pool)
	if err != nil {
		return "", err
	}

	if len(out) == 0 || len(out[0]) == 0 {
		return "", fmt.Errorf("property %s not found on pool %s", key, pool)
	}

	return strings.Join(out[0], " "), nil
}

// SetPoolProperty sets a zpool(8) property or user property.
func (z *zfs) SetPoolProperty(pool, key, value string) error {
	_, err := z.run(nil, nil, "zpool", "set", fmt.Sprintf("%s=%s", key, value), pool)
	return err
}

// MarshalJSON lets *Pool participate in the JSON snapshots the event
// stream (internal/events) attaches to jail-creation steps.
func (p *Pool) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name   string `json:"name"`
		Health string `json:"health"`
		GUID   string `json:"guid"`
	}{p.Name, p.Health, p.GUID})
}
