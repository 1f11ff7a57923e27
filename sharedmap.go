package swap

import (
	"sync"
	"time"
)

// ExpiringMap 是带过期时间的并发安全Map
type ExpiringMap struct {
	mm    map[string]*entry
	mutex *sync.RWMutex
}

func NewExpiringMap() *ExpiringMap {
	return &ExpiringMap{
		mm:    make(map[string]*entry),
		mutex: new(sync.RWMutex),
	}
}

// Add 设置Key、Value和缓存时间。返回是否添加成功。
// 如果Key已存在且未过期，添加将失败，并返回False；已过期的Key被替换。
func (em *ExpiringMap) Add(key string, value interface{}, timeout time.Duration) bool {
	em.mutex.Lock()
	defer em.mutex.Unlock()

	now := time.Now()
	if old, found := em.mm[key]; found && !old.expired(now) {
		return false
	}
	var expire time.Time
	if timeout > 0 {
		expire = now.Add(timeout)
	}
	em.mm[key] = &entry{
		value:  value,
		added:  now,
		expire: expire,
	}
	return true
}

// Del 删除指定Key的值
func (em *ExpiringMap) Del(key string) {
	em.mutex.Lock()
	defer em.mutex.Unlock()
	delete(em.mm, key)
}

// Purge 清除全部已过期的Key，返回清除数量
func (em *ExpiringMap) Purge() int {
	em.mutex.Lock()
	defer em.mutex.Unlock()
	now := time.Now()
	count := 0
	for k, e := range em.mm {
		if e.expired(now) {
			delete(em.mm, k)
			count++
		}
	}
	return count
}

// Oldest 返回最早添加的Key；Map为空时返回 "", false.
func (em *ExpiringMap) Oldest() (string, bool) {
	em.mutex.RLock()
	defer em.mutex.RUnlock()
	var key string
	var added time.Time
	found := false
	for k, e := range em.mm {
		if !found || e.added.Before(added) {
			key, added, found = k, e.added, true
		}
	}
	return key, found
}

func (em *ExpiringMap) Len() int {
	em.mutex.RLock()
	defer em.mutex.RUnlock()
	return len(em.mm)
}

////

type entry struct {
	value  interface{}
	added  time.Time
	expire time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expire.IsZero() && now.After(e.expire)
}
