// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	rec := testutil.NewEventRecorder()
//	ctx = workflow.WithStreamEmitter(ctx, rec.Emit)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/researchflow/llm"
	"github.com/BaSui01/researchflow/workflow"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertMessagesEqual 断言两个消息切片相等
func AssertMessagesEqual(t *testing.T, expected, actual []llm.Message) {
	t.Helper()

	if len(expected) != len(actual) {
		t.Errorf("message count mismatch: expected %d, got %d", len(expected), len(actual))
		return
	}

	for i := range expected {
		if expected[i].Role != actual[i].Role {
			t.Errorf("message[%d] role mismatch: expected %q, got %q", i, expected[i].Role, actual[i].Role)
		}
		if expected[i].Content != actual[i].Content {
			t.Errorf("message[%d] content mismatch: expected %q, got %q", i, expected[i].Content, actual[i].Content)
		}
	}
}

// =============================================================================
// 📦 数据工具
// =============================================================================

// MustParseJSON 解析 JSON 字符串，失败时 panic
func MustParseJSON[T any](s string) T {
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}

// =============================================================================
// 📡 工作流事件记录
// =============================================================================

// EventRecorder 收集工作流流式事件，可跨运行复用
type EventRecorder struct {
	mu     sync.Mutex
	events []workflow.StreamEvent
}

// NewEventRecorder 创建事件记录器
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

// Emit 实现 workflow.StreamEmitter
func (r *EventRecorder) Emit(ev workflow.StreamEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events 返回已收集的事件
func (r *EventRecorder) Events() []workflow.StreamEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]workflow.StreamEvent(nil), r.events...)
}

// OfType 返回指定类型的事件
func (r *EventRecorder) OfType(t workflow.StreamEventType) []workflow.StreamEvent {
	var out []workflow.StreamEvent
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
