package resolver

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrHealingDisabled 自愈链被配置关闭
var ErrHealingDisabled = errors.New("self-healing is disabled")

// ElementNotFoundError 所有策略（直接探测 + 自愈）均失败
// 携带描述与尝试过的策略，调用方只会看到这一个终态错误
type ElementNotFoundError struct {
	Description string
	Attempted   []string
}

func (e *ElementNotFoundError) Error() string {
	if len(e.Attempted) == 0 {
		return fmt.Sprintf("element not found: %s", e.Description)
	}
	return fmt.Sprintf("element not found: %s (attempted: %s)", e.Description, strings.Join(e.Attempted, ", "))
}

// IsElementNotFound 判断错误是否为元素未找到
func IsElementNotFound(err error) bool {
	var target *ElementNotFoundError
	return errors.As(err, &target)
}

// ExternalServiceError AI 建议服务失败或返回不可验证的选择器
// 与普通自愈策略失败同等对待，不中断链
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %s failed: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }
