package intervene

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/studyfocus/focusmon/internal/domain"
)

// mockChannel scripts the overlay delivery surface
type mockChannel struct {
	showErr   error
	injectErr error
	choice    string
	choiceErr error
	goBackErr error

	showCalls   int
	injectCalls int
	goBackCalls int
	closeCalls  int
}

func (m *mockChannel) ShowOverlay(ctx context.Context, tabID, dom string) error {
	m.showCalls++
	return m.showErr
}

func (m *mockChannel) InjectOverlay(ctx context.Context, tabID, dom string) error {
	m.injectCalls++
	return m.injectErr
}

func (m *mockChannel) AwaitChoice(ctx context.Context, tabID string) (string, error) {
	return m.choice, m.choiceErr
}

func (m *mockChannel) GoBack(ctx context.Context, tabID string) error {
	m.goBackCalls++
	return m.goBackErr
}

func (m *mockChannel) CloseTab(ctx context.Context, tabID string) error {
	m.closeCalls++
	return nil
}

var event = domain.InterventionEvent{TabID: "42", Domain: "reddit.com"}

// TestDispatch_WorkChoiceConfirms verifies "work" routes to the callback
func TestDispatch_WorkChoiceConfirms(t *testing.T) {
	ch := &mockChannel{choice: "work"}
	var confirmed []string
	d := New(ch, func(dom string) error {
		confirmed = append(confirmed, dom)
		return nil
	}, zap.NewNop())

	d.Dispatch(context.Background(), event)

	assert.Equal(t, []string{"reddit.com"}, confirmed)
	assert.Equal(t, 1, ch.showCalls)
	assert.Zero(t, ch.injectCalls)
	assert.Zero(t, ch.goBackCalls)
}

// TestDispatch_BackChoiceNavigatesAway verifies "back" leaves the page
func TestDispatch_BackChoiceNavigatesAway(t *testing.T) {
	ch := &mockChannel{choice: "back"}
	d := New(ch, func(string) error { return nil }, zap.NewNop())

	d.Dispatch(context.Background(), event)

	assert.Equal(t, 1, ch.goBackCalls)
	assert.Zero(t, ch.closeCalls)
}

// TestDispatch_InjectFallback verifies injection when no listener answers
func TestDispatch_InjectFallback(t *testing.T) {
	ch := &mockChannel{showErr: errors.New("no listener"), choice: "work"}
	d := New(ch, func(string) error { return nil }, zap.NewNop())

	d.Dispatch(context.Background(), event)

	assert.Equal(t, 1, ch.showCalls)
	assert.Equal(t, 1, ch.injectCalls)
}

// TestDispatch_DeliveryFailureDrops verifies a dead tab is dropped silently
func TestDispatch_DeliveryFailureDrops(t *testing.T) {
	ch := &mockChannel{
		showErr:   errors.New("no listener"),
		injectErr: errors.New("tab gone"),
	}
	called := false
	d := New(ch, func(string) error { called = true; return nil }, zap.NewNop())

	d.Dispatch(context.Background(), event)

	assert.False(t, called)
	assert.Zero(t, ch.goBackCalls)
	assert.Zero(t, ch.closeCalls)
}

// TestDispatch_TimeoutTreatedAsBack verifies unresolved overlays leave
func TestDispatch_TimeoutTreatedAsBack(t *testing.T) {
	ch := &mockChannel{choiceErr: context.DeadlineExceeded}
	d := New(ch, func(string) error { return nil }, zap.NewNop())

	d.Dispatch(context.Background(), event)

	assert.Equal(t, 1, ch.goBackCalls)
}

// TestDispatch_CloseWhenNoHistory verifies the go-back/close fallback chain
func TestDispatch_CloseWhenNoHistory(t *testing.T) {
	ch := &mockChannel{choice: "back", goBackErr: errors.New("no history")}
	d := New(ch, func(string) error { return nil }, zap.NewNop())

	d.Dispatch(context.Background(), event)

	assert.Equal(t, 1, ch.goBackCalls)
	assert.Equal(t, 1, ch.closeCalls)
}

// TestDispatch_ConfirmErrorDoesNotNavigate verifies a failed confirmation
// does not punish the user by leaving the page
func TestDispatch_ConfirmErrorDoesNotNavigate(t *testing.T) {
	ch := &mockChannel{choice: "work"}
	d := New(ch, func(string) error { return errors.New("disk full") }, zap.NewNop())

	d.Dispatch(context.Background(), event)

	assert.Zero(t, ch.goBackCalls)
	assert.Zero(t, ch.closeCalls)
}
