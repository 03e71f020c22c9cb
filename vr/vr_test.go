package vr_test

import (
	"testing"

	"github/sabouaram/httpengine/vr"
)

func TestListActionRunsChildrenInOrder(t *testing.T) {
	var order []int
	v := vr.New(nil)
	v.SetActionRoot(&vr.ListAction{Children: []vr.Action{
		&vr.SettingAction{Apply: func(*vr.VR) { order = append(order, 1) }},
		&vr.SettingAction{Apply: func(*vr.VR) { order = append(order, 2) }},
		&vr.SettingAction{Apply: func(*vr.VR) { order = append(order, 3) }},
	}})

	res := v.HandleRequestHeaders()
	if res != vr.GoOn {
		t.Fatalf("expected GoOn, got %v", res)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestConditionActionPicksBranch(t *testing.T) {
	var ran string
	v := vr.New(nil)
	v.SetActionRoot(&vr.ConditionAction{
		Cond: func(*vr.VR) bool { return false },
		Then: &vr.SettingAction{Apply: func(*vr.VR) { ran = "then" }},
		Else: &vr.SettingAction{Apply: func(*vr.VR) { ran = "else" }},
	})
	v.HandleRequestHeaders()
	if ran != "else" {
		t.Fatalf("expected else branch, got %q", ran)
	}
}

func TestFunctionActionWaitForEventStopsStack(t *testing.T) {
	calls := 0
	v := vr.New(nil)
	v.SetActionRoot(&vr.FunctionAction{Call: func(*vr.VR) vr.Result {
		calls++
		return vr.WaitForEvent
	}})
	res := v.HandleRequestHeaders()
	if res != vr.WaitForEvent || calls != 1 {
		t.Fatalf("expected single WaitForEvent call, got res=%v calls=%d", res, calls)
	}
}

func TestHandleDirectClosesOutAndSkipsReadContent(t *testing.T) {
	v := vr.New(nil)
	v.HandleDirect()
	if v.State.String() != "handle_response_headers" {
		t.Fatalf("expected HandleResponseHeaders state, got %v", v.State)
	}
	if !v.Out.IsClosed() {
		t.Fatalf("expected Out closed")
	}
}

func TestHandleIndirectMarksIndirectDispatch(t *testing.T) {
	v := vr.New(nil)
	v.HandleIndirect(func(*vr.VR) vr.Result { return vr.GoOn })
	if !v.IsIndirect() {
		t.Fatalf("expected indirect dispatch")
	}
	if v.HandleRequestBody() != vr.GoOn {
		t.Fatalf("expected handler to run")
	}
}

func TestDoneReflectsClosedEmptyOut(t *testing.T) {
	v := vr.New(nil)
	if v.Done() {
		t.Fatalf("fresh VR should not be done")
	}
	v.VROut.Close()
	if !v.Done() {
		t.Fatalf("expected done once VROut closed and empty")
	}
}
