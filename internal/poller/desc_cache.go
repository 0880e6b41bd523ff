package poller

import (
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"
)

const pollBlockSize = 4 * 1024

func init() {
	defaultDescCache = &descCache{
		cache: make([]*Desc, 0, 1024),
	}
	runtime.KeepAlive(defaultDescCache)
}

var defaultDescCache *descCache

// descCache is a spinlock-guarded free-list arena for Desc. Desc values
// must live in non-GC-moved memory because the kernel's opaque user-data
// field holds an unsafe.Pointer to one; this arena is adapted verbatim
// from the teacher's desc_cache.go for exactly that reason.
type descCache struct {
	first  *Desc
	cache  []*Desc
	locked int32

	mu       sync.Mutex
	freeList []int32
}

func alloc() *Desc {
	return defaultDescCache.alloc()
}

func (dc *descCache) alloc() *Desc {
	dc.lock()
	if dc.first == nil {
		const descSize = unsafe.Sizeof(Desc{})
		n := pollBlockSize / descSize
		if n == 0 {
			n = 1
		}
		index := int32(len(dc.cache))
		for i := uintptr(0); i < n; i++ {
			d := &Desc{index: index}
			dc.cache = append(dc.cache, d)
			d.next = dc.first
			dc.first = d
			index++
		}
	}
	d := dc.first
	dc.first = d.next
	dc.unlock()
	return d
}

func markDescFree(d *Desc) {
	defaultDescCache.markFree(d)
}

func freeDesc() {
	defaultDescCache.free()
}

func (dc *descCache) markFree(d *Desc) {
	dc.mu.Lock()
	dc.freeList = append(dc.freeList, d.index)
	dc.mu.Unlock()
}

func (dc *descCache) free() {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if len(dc.freeList) == 0 {
		return
	}
	dc.lock()
	for _, i := range dc.freeList {
		d := dc.cache[i]
		d.reset()
		d.next = dc.first
		dc.first = d
	}
	dc.freeList = dc.freeList[:0]
	dc.unlock()
}

func (dc *descCache) lock() {
	for !atomic.CompareAndSwapInt32(&dc.locked, 0, 1) {
		runtime.Gosched()
	}
}

func (dc *descCache) unlock() {
	atomic.StoreInt32(&dc.locked, 0)
}
