/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package vr

// Action is a node in the action tree: Setting, Function, Condition
// or List (grounded on original_source/src/actions.h's action_type
// union, generalized from a C tagged-union to a Go interface).
type Action interface {
	run(v *VR) Result
}

// expanded is returned internally by List/Condition nodes: they pop
// themselves and push their children in the same step, so RunStack
// must not also try to pop them.
const expanded Result = 100

// SettingAction applies a named option value and always advances.
type SettingAction struct {
	Apply func(v *VR)
}

func (a *SettingAction) run(v *VR) Result {
	if a.Apply != nil {
		a.Apply(v)
	}
	return GoOn
}

// FunctionAction calls a typed callback that returns the dispatch
// result directly (GoOn/WaitForEvent/ErrorResult/Comeback).
type FunctionAction struct {
	Call func(v *VR) Result
}

func (a *FunctionAction) run(v *VR) Result {
	if a.Call == nil {
		return GoOn
	}
	return a.Call(v)
}

// ConditionAction evaluates Cond and pushes Then or Else (if any) in
// place of itself.
type ConditionAction struct {
	Cond func(v *VR) bool
	Then Action
	Else Action
}

func (a *ConditionAction) run(v *VR) Result {
	v.stack.pop()
	branch := a.Else
	if a.Cond != nil && a.Cond(v) {
		branch = a.Then
	}
	if branch != nil {
		v.stack.PushChild(branch)
	}
	return expanded
}

// ListAction pushes each child in place of itself, in order.
type ListAction struct {
	Children []Action
}

func (a *ListAction) run(v *VR) Result {
	v.stack.pop()
	for i := len(a.Children) - 1; i >= 0; i-- {
		v.stack.PushChild(a.Children[i])
	}
	return expanded
}

// frame is one entry of the action stack: the node itself (spec
// §4.7's "(action_node, position)" pair collapses to just the node
// since List/Condition expand themselves rather than tracking an
// index).
type frame struct {
	node Action
}

// ActionStack is a stack of action nodes, per spec §4.7.
type ActionStack struct {
	frames []frame
}

func NewActionStack() *ActionStack {
	return &ActionStack{}
}

// Push installs the root node to run.
func (s *ActionStack) Push(a Action) {
	s.frames = append(s.frames, frame{node: a})
}

// PushChild pushes a child node on top of the current frame (used by
// Condition/List during their run()).
func (s *ActionStack) PushChild(a Action) {
	s.frames = append(s.frames, frame{node: a})
}

// Top returns the node currently on top of the stack.
func (s *ActionStack) Top() (Action, bool) {
	if len(s.frames) == 0 {
		return nil, false
	}
	return s.frames[len(s.frames)-1].node, true
}

// Advance pops the top frame once it has returned GoOn.
func (s *ActionStack) Advance() {
	s.pop()
}

func (s *ActionStack) pop() {
	if len(s.frames) == 0 {
		return
	}
	s.frames = s.frames[:len(s.frames)-1]
}
