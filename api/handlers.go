package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/testwing/testwing/config"
	"github.com/testwing/testwing/driver"
	"github.com/testwing/testwing/models"
	"github.com/testwing/testwing/pkg/logger"
	"github.com/testwing/testwing/resolver"
	"github.com/testwing/testwing/services/browser"
	"github.com/testwing/testwing/storage"
)

type Handler struct {
	db             *storage.BoltDB
	browserManager *browser.Manager
	config         *config.Config
	doc            *driver.RodDocument
	executor       *resolver.Executor
	facade         *resolver.Facade
	healing        *resolver.HealingEngine
	caches         *resolver.Caches
}

func NewHandler(
	db *storage.BoltDB,
	browserMgr *browser.Manager,
	cfg *config.Config,
	doc *driver.RodDocument,
	exec *resolver.Executor,
	facade *resolver.Facade,
	healing *resolver.HealingEngine,
	caches *resolver.Caches,
) *Handler {
	return &Handler{
		db:             db,
		browserManager: browserMgr,
		config:         cfg,
		doc:            doc,
		executor:       exec,
		facade:         facade,
		healing:        healing,
		caches:         caches,
	}
}

// ============= 浏览器控制相关 API =============

// StartBrowser 启动浏览器
func (h *Handler) StartBrowser(c *gin.Context) {
	if h.browserManager.IsRunning() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.browserAlreadyRunning"})
		return
	}

	if err := h.browserManager.Start(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.startBrowserFailed"})
		return
	}

	// 剪贴板权限启动时一次性授予，失败不影响浏览器可用
	if err := h.browserManager.GrantClipboard(c.Request.Context()); err != nil {
		logger.Warn(c.Request.Context(), "[StartBrowser] Grant clipboard permissions failed: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "success.browserStarted",
		"status":  h.browserManager.Status(),
	})
}

// StopBrowser 停止浏览器
func (h *Handler) StopBrowser(c *gin.Context) {
	if !h.browserManager.IsRunning() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.browserNotRunning"})
		return
	}

	if err := h.browserManager.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.stopBrowserFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "success.browserStopped",
	})
}

// BrowserStatus 获取浏览器状态
func (h *Handler) BrowserStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.browserManager.Status())
}

// OpenBrowserPage 在浏览器中打开页面
func (h *Handler) OpenBrowserPage(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.invalidParams"})
		return
	}

	if !h.browserManager.IsRunning() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.browserNotRunning"})
		return
	}

	if err := h.browserManager.OpenPage(c.Request.Context(), req.URL); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.openPageFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "success.pageOpened",
		"url":     req.URL,
	})
}

// ClosePage 关闭当前活动页面
func (h *Handler) ClosePage(c *gin.Context) {
	if err := h.browserManager.CloseActivePage(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.closePageFailed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "success.pageClosed"})
}

// ============= 元素解析相关 API =============

// resolveResponse 解析成功时返回的元素信息
type resolveResponse struct {
	Selector string `json:"selector"`
	Strategy string `json:"strategy"`
	Text     string `json:"text,omitempty"`
	Visible  bool   `json:"visible"`
}

func newResolveResponse(h *resolver.ResolvedHandle) resolveResponse {
	resp := resolveResponse{
		Selector: h.Selector,
		Strategy: h.Strategy.String(),
	}
	if text, err := h.Element.Text(); err == nil {
		resp.Text = text
	}
	if visible, err := h.Element.Visible(); err == nil {
		resp.Visible = visible
	}
	return resp
}

// ResolveElement 按描述符解析元素
func (h *Handler) ResolveElement(c *gin.Context) {
	var desc models.ElementDescriptor
	if err := c.ShouldBindJSON(&desc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.invalidParams"})
		return
	}

	if !h.browserManager.IsRunning() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.browserNotRunning"})
		return
	}

	ctx := c.Request.Context()
	handle, err := h.executor.Resolve(ctx, h.doc, &desc)
	if err != nil {
		if resolver.IsElementNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "error.elementNotFound", "detail": err.Error()})
			return
		}
		logger.Error(ctx, "[API] Resolve failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.resolveFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "success.elementResolved",
		"element": newResolveResponse(handle),
	})
}

// ResolveByDescription 按自然语言描述解析元素
func (h *Handler) ResolveByDescription(c *gin.Context) {
	var req struct {
		Description string `json:"description" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.invalidParams"})
		return
	}

	if !h.browserManager.IsRunning() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.browserNotRunning"})
		return
	}

	ctx := c.Request.Context()
	handle, err := h.facade.ResolveByDescription(ctx, h.doc, req.Description)
	if err != nil {
		if resolver.IsElementNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "error.elementNotFound", "detail": err.Error()})
			return
		}
		logger.Error(ctx, "[API] Resolve by description failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.resolveFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "success.elementResolved",
		"element": newResolveResponse(handle),
	})
}

// HealLocator 对失效定位串执行自愈链
func (h *Handler) HealLocator(c *gin.Context) {
	var req struct {
		Locator      string   `json:"locator" binding:"required"` // kind:value 前缀约定
		Description  string   `json:"description"`
		Alternatives []string `json:"alternatives"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.invalidParams"})
		return
	}

	if !h.browserManager.IsRunning() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.browserNotRunning"})
		return
	}

	ctx := c.Request.Context()
	original := models.ParseTaggedLocator(req.Locator)
	desc := &models.ElementDescriptor{
		Description: req.Description,
		SelfHeal:    true,
		AltLocators: req.Alternatives,
	}

	handle, result, err := h.healing.Heal(ctx, h.doc, desc, original)
	if err != nil {
		if err == resolver.ErrHealingDisabled {
			c.JSON(http.StatusConflict, gin.H{"error": "error.healingDisabled"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{
			"error":  "error.healingFailed",
			"result": result,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "success.locatorHealed",
		"result":  result,
		"element": newResolveResponse(handle),
	})
}

// ListHealingHistory 列出所有自愈记录
func (h *Handler) ListHealingHistory(c *gin.Context) {
	records, err := h.db.ListAllHealingRecords()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.listHealingHistoryFailed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// GetHealingHistory 获取指定原始定位串的自愈记录
func (h *Handler) GetHealingHistory(c *gin.Context) {
	locator := c.Param("locator")

	// 内存缓存优先（包含尚未落盘的记录）
	records := h.caches.HealingRecords(locator)
	if len(records) == 0 {
		stored, err := h.db.ListHealingRecords(locator)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "error.listHealingHistoryFailed"})
			return
		}
		records = stored
	}

	c.JSON(http.StatusOK, gin.H{"locator": locator, "records": records, "count": len(records)})
}

// ============= 描述符管理相关 API =============

// CreateDescriptor 创建命名描述符
func (h *Handler) CreateDescriptor(c *gin.Context) {
	var req struct {
		Name       string                   `json:"name" binding:"required"`
		Descriptor models.ElementDescriptor `json:"descriptor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.invalidParams"})
		return
	}

	rec := &models.DescriptorRecord{
		ID:         uuid.New().String(),
		Name:       req.Name,
		Descriptor: req.Descriptor,
		CreatedAt:  time.Now(),
	}
	if err := h.db.SaveDescriptor(rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.saveDescriptorFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "success.descriptorSaved", "descriptor": rec})
}

// GetDescriptor 获取命名描述符
func (h *Handler) GetDescriptor(c *gin.Context) {
	rec, err := h.db.GetDescriptor(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "error.descriptorNotFound"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListDescriptors 列出所有命名描述符
func (h *Handler) ListDescriptors(c *gin.Context) {
	recs, err := h.db.ListDescriptors()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.listDescriptorsFailed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"descriptors": recs, "count": len(recs)})
}

// UpdateDescriptor 更新命名描述符
func (h *Handler) UpdateDescriptor(c *gin.Context) {
	id := c.Param("id")
	existing, err := h.db.GetDescriptor(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "error.descriptorNotFound"})
		return
	}

	var req struct {
		Name       string                   `json:"name"`
		Descriptor models.ElementDescriptor `json:"descriptor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.invalidParams"})
		return
	}

	if req.Name != "" {
		existing.Name = req.Name
	}
	existing.Descriptor = req.Descriptor
	if err := h.db.SaveDescriptor(existing); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.saveDescriptorFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "success.descriptorSaved", "descriptor": existing})
}

// DeleteDescriptor 删除命名描述符
func (h *Handler) DeleteDescriptor(c *gin.Context) {
	if err := h.db.DeleteDescriptor(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.deleteDescriptorFailed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "success.descriptorDeleted"})
}

// ResolveStoredDescriptor 解析已保存的命名描述符
func (h *Handler) ResolveStoredDescriptor(c *gin.Context) {
	rec, err := h.db.GetDescriptor(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "error.descriptorNotFound"})
		return
	}

	if !h.browserManager.IsRunning() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error.browserNotRunning"})
		return
	}

	ctx := c.Request.Context()
	handle, err := h.executor.Resolve(ctx, h.doc, &rec.Descriptor)
	if err != nil {
		if resolver.IsElementNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "error.elementNotFound", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error.resolveFailed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "success.elementResolved",
		"name":    rec.Name,
		"element": newResolveResponse(handle),
	})
}
