package core

import "time"

var ResetMiddlewares = resetMiddlewares

func NewMemoryCacheWithClock(now func() time.Time) Cache {
	return &memoryCache{data: make(map[string]memoryEntry), now: now}
}
