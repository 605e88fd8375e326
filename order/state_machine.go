package order

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// StateTransition 状态转换
type StateTransition struct {
	From Status
	To   Status
}

// StateMachine 订单状态机
type StateMachine struct {
	transitions map[StateTransition]bool
	mu          sync.RWMutex
}

// NewStateMachine 创建新的状态机
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[StateTransition]bool),
	}
	sm.initializeTransitions()
	return sm
}

// initializeTransitions 初始化所有合法的状态转换
func (sm *StateMachine) initializeTransitions() {
	legal := []StateTransition{
		{StatusCreated, StatusPending},
		{StatusCreated, StatusCancelled},
		{StatusPending, StatusExecuted},
		{StatusPending, StatusCancelled},
	}
	for _, t := range legal {
		sm.transitions[t] = true
	}
}

// CanTransition 检查是否可以从from转换到to
func (sm *StateMachine) CanTransition(from, to Status) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.transitions[StateTransition{From: from, To: to}]
}

// Transition 校验并修改订单状态
func (sm *StateMachine) Transition(o *Order, to Status) error {
	if !sm.CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s (order %s)", ErrInvalidTransition, o.Status, to, o.ID)
	}
	o.Status = to
	return nil
}

// IsFinal 判断是否为终态
func (s Status) IsFinal() bool {
	return s == StatusExecuted || s == StatusCancelled
}

var defaultStateMachine = NewStateMachine()

// Cancel 把订单转为 Cancelled 并从簿中移除，返回撤销后的订单。
func (b *Book) Cancel(id string) (Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	if o.Status.IsFinal() {
		return o, fmt.Errorf("%w: order %s already %s", ErrInvalidTransition, id, o.Status)
	}
	if err := defaultStateMachine.Transition(&o, StatusCancelled); err != nil {
		return o, err
	}
	delete(b.orders, id)
	return o, nil
}
