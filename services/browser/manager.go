package browser

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/testwing/testwing/config"
	"github.com/testwing/testwing/pkg/logger"
)

// defaultLaunchArgs 默认启动参数，降低被目标站点识别为自动化的概率
var defaultLaunchArgs = []string{
	"disable-blink-features=AutomationControlled",
	"excludeSwitches=enable-automation",
	"no-first-run",
	"no-default-browser-check",
	"window-size=1920,1080",
}

// Manager 浏览器管理器：负责浏览器进程生命周期与活动页面
type Manager struct {
	config *config.Config
	mu     sync.Mutex

	browser    *rod.Browser
	launcher   *launcher.Launcher
	isRunning  bool
	startTime  time.Time
	activePage *rod.Page
}

// NewManager 创建浏览器管理器
func NewManager(cfg *config.Config) *Manager {
	return &Manager{config: cfg}
}

// Start 启动浏览器
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("browser is already running")
	}

	logger.Info(ctx, "Starting browser...")

	headless := true
	if m.config.Browser != nil {
		headless = m.config.Browser.Headless
	}
	// 无 GUI 环境强制 headless
	if !headless && isHeadlessEnvironment() {
		logger.Warn(ctx, "No display detected, forcing headless mode")
		headless = true
	}
	logger.Info(ctx, "Headless mode: %v", headless)

	l := launcher.New().
		Headless(headless).
		Devtools(false).
		Leakless(false)

	for _, arg := range defaultLaunchArgs {
		arg = strings.TrimPrefix(arg, "--")
		if strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			l = l.Set(flags.Flag(parts[0]), parts[1])
		} else {
			l = l.Set(flags.Flag(arg))
		}
	}

	// 设置浏览器路径
	if m.config.Browser != nil && m.config.Browser.BinPath != "" {
		l = l.Bin(m.config.Browser.BinPath)
		logger.Info(ctx, "Using browser path: %s", m.config.Browser.BinPath)
	}

	// 设置用户数据目录，保存登录状态
	if m.config.Browser != nil && m.config.Browser.UserDataDir != "" {
		userDataDir := m.config.Browser.UserDataDir
		if err := os.MkdirAll(userDataDir, 0o755); err != nil {
			logger.Warn(ctx, "Failed to create user data directory: %v", err)
		} else {
			l = l.UserDataDir(userDataDir)
			logger.Info(ctx, "Using user data directory: %s", userDataDir)
		}
	}

	url, err := l.Launch()
	if err != nil {
		logger.Error(ctx, "Failed to start browser: %v", err)
		if strings.Contains(err.Error(), "already") || strings.Contains(err.Error(), "session") {
			return fmt.Errorf("chrome is already running with the same user data directory, close all chrome windows and try again")
		}
		return fmt.Errorf("failed to start browser: %w", err)
	}
	logger.Info(ctx, "Browser control URL: %s", url)

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("failed to connect browser: %w", err)
	}

	if version, err := browser.Version(); err == nil {
		logger.Info(ctx, "Browser version: %s", version.Product)
	}

	m.browser = browser
	m.launcher = l
	m.isRunning = true
	m.startTime = time.Now()

	logger.Info(ctx, "Browser started successfully")
	return nil
}

// Stop 停止浏览器
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return fmt.Errorf("browser is not running")
	}

	ctx := context.Background()
	logger.Info(ctx, "Closing browser...")

	// 先关闭所有页面，让浏览器有机会保存数据
	if m.browser != nil {
		if pages, err := m.browser.Pages(); err == nil {
			for _, page := range pages {
				_ = page.Close()
			}
			logger.Info(ctx, "Closed %d pages", len(pages))
		}
		time.Sleep(1 * time.Second)

		if err := m.browser.Close(); err != nil {
			logger.Warn(ctx, "Error when closing browser connection: %v", err)
		}
	}

	// 不调用 launcher.Cleanup()：它会删除用户数据目录
	if m.launcher != nil {
		time.Sleep(1 * time.Second)
		m.launcher.Kill()
		logger.Info(ctx, "Browser process terminated")
	}

	m.browser = nil
	m.launcher = nil
	m.isRunning = false
	m.activePage = nil

	logger.Info(ctx, "Browser fully closed, user data saved")
	return nil
}

// IsRunning 检查浏览器是否运行
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRunning
}

// ActivePage 获取当前活动页面
func (m *Manager) ActivePage() *rod.Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activePage
}

// OpenPage 打开一个新页面并导航到目标 URL，成为当前活动页面
func (m *Manager) OpenPage(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning || m.browser == nil {
		return fmt.Errorf("browser is not running")
	}

	// stealth 页面，降低被反爬识别的概率
	page, err := stealth.Page(m.browser)
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}

	page = page.Context(ctx)
	if err := page.Timeout(60 * time.Second).Navigate(url); err != nil {
		_ = page.Close()
		return fmt.Errorf("failed to navigate to page: %w", err)
	}
	if err := page.Timeout(60 * time.Second).WaitLoad(); err != nil {
		logger.Warn(ctx, "Failed to wait for page load: %v", err)
	}

	m.activePage = page
	logger.Info(ctx, "Page opened: %s", url)
	return nil
}

// CloseActivePage 关闭当前活动页面
func (m *Manager) CloseActivePage(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activePage == nil {
		logger.Warn(ctx, "No active page to close")
		return nil
	}
	if err := m.activePage.Close(); err != nil {
		return fmt.Errorf("failed to close active page: %w", err)
	}
	m.activePage = nil
	logger.Info(ctx, "Active page closed")
	return nil
}

// Status 获取浏览器状态
func (m *Manager) Status() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := map[string]interface{}{
		"is_running": m.isRunning,
	}

	if m.isRunning {
		status["start_time"] = m.startTime.Format(time.RFC3339)
		status["uptime"] = time.Since(m.startTime).String()

		if m.browser != nil {
			if pages, err := m.browser.Pages(); err == nil {
				status["pages_count"] = len(pages)
			}
		}
		if m.activePage != nil {
			if info, err := m.activePage.Info(); err == nil {
				status["active_url"] = info.URL
			}
		}
	}

	return status
}

// isHeadlessEnvironment 检测当前环境是否为无 GUI 环境
func isHeadlessEnvironment() bool {
	// 容器环境
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		content := string(data)
		if strings.Contains(content, "docker") || strings.Contains(content, "containerd") {
			return true
		}
	}

	// Windows 和 macOS 默认有 GUI 环境
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return false
	}

	// Linux 下看显示服务环境变量
	if runtime.GOOS == "linux" {
		if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
			return true
		}
	}

	return false
}

// GrantClipboard 授予剪贴板权限，避免页面内操作时弹出权限请求
func (m *Manager) GrantClipboard(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning || m.browser == nil {
		return fmt.Errorf("browser is not running")
	}

	grant := &proto.BrowserGrantPermissions{
		Permissions: []proto.BrowserPermissionType{
			proto.BrowserPermissionTypeClipboardReadWrite,
			proto.BrowserPermissionTypeClipboardSanitizedWrite,
		},
	}
	if err := grant.Call(m.browser); err != nil {
		return fmt.Errorf("failed to grant clipboard permissions: %w", err)
	}
	logger.Info(ctx, "Clipboard permissions granted")
	return nil
}
