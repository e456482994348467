package resolver

import (
	"sync"

	"github.com/testwing/testwing/models"
)

const (
	// maxHealingRecords 每个原始定位器保留的自愈记录上限
	maxHealingRecords = 10
	// maxAlternativeHistory 每个描述保留的成功替代定位串上限
	maxAlternativeHistory = 5
)

// Caches 解析/自愈缓存
// 解析调用的读路径会产生写入，服务在 OS 线程上并发处理请求，必须加锁
type Caches struct {
	mu sync.RWMutex

	resolved      map[string]*ResolvedHandle        // 描述 -> 已解析句柄
	records       map[string][]models.HealingResult // 原始定位器 -> 自愈记录（旧在前）
	lastResult    map[string]models.HealingResult   // 原始定位器 -> 最近一次结果
	altHistory    map[string][]string               // 描述 -> 成功替代定位串（新在前）
	visualSigs    map[string]models.VisualSignature
	structureSigs map[string]models.StructureSignature
}

func NewCaches() *Caches {
	return &Caches{
		resolved:      make(map[string]*ResolvedHandle),
		records:       make(map[string][]models.HealingResult),
		lastResult:    make(map[string]models.HealingResult),
		altHistory:    make(map[string][]string),
		visualSigs:    make(map[string]models.VisualSignature),
		structureSigs: make(map[string]models.StructureSignature),
	}
}

// GetResolved 取出按描述缓存的句柄，导航后的旧句柄视为失效并删除
func (c *Caches) GetResolved(description string, epoch uint64) (*ResolvedHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.resolved[description]
	if !ok {
		return nil, false
	}
	if h.epoch != epoch {
		delete(c.resolved, description)
		return nil, false
	}
	return h, true
}

func (c *Caches) PutResolved(description string, h *ResolvedHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolved[description] = h
}

func (c *Caches) InvalidateResolved(description string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.resolved, description)
}

// AddHealingRecord 追加自愈记录，超过上限时淘汰最旧的
func (c *Caches) AddHealingRecord(r models.HealingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := append(c.records[r.OriginalLocator], r)
	if len(list) > maxHealingRecords {
		list = list[len(list)-maxHealingRecords:]
	}
	c.records[r.OriginalLocator] = list
	c.lastResult[r.OriginalLocator] = r
}

func (c *Caches) HealingRecords(originalLocator string) []models.HealingResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := c.records[originalLocator]
	out := make([]models.HealingResult, len(list))
	copy(out, list)
	return out
}

func (c *Caches) LastHealingResult(originalLocator string) (models.HealingResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.lastResult[originalLocator]
	return r, ok
}

// AddAlternative 记录描述级别的成功替代定位串，新在前、去重、超限淘汰最旧
func (c *Caches) AddAlternative(description, locator string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.altHistory[description]
	out := make([]string, 0, len(list)+1)
	out = append(out, locator)
	for _, l := range list {
		if l != locator {
			out = append(out, l)
		}
	}
	if len(out) > maxAlternativeHistory {
		out = out[:maxAlternativeHistory]
	}
	c.altHistory[description] = out
}

func (c *Caches) Alternatives(description string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := c.altHistory[description]
	out := make([]string, len(list))
	copy(out, list)
	return out
}

func (c *Caches) PutVisualSignature(locator string, sig models.VisualSignature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visualSigs[locator] = sig
}

func (c *Caches) VisualSignature(locator string) (models.VisualSignature, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sig, ok := c.visualSigs[locator]
	return sig, ok
}

func (c *Caches) PutStructureSignature(locator string, sig models.StructureSignature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.structureSigs[locator] = sig
}

func (c *Caches) StructureSignature(locator string) (models.StructureSignature, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sig, ok := c.structureSigs[locator]
	return sig, ok
}
