package domain

import "testing"

func TestPlanForRole(t *testing.T) {
	tests := []struct {
		name string
		role UserRole
		want int
	}{
		{name: "free limit", role: UserRoleFree, want: 8},
		{name: "plus limit", role: UserRolePlus, want: 30},
		{name: "pro limit", role: UserRolePro, want: 100},
		{name: "developer unlimited", role: UserRoleDeveloper, want: 0},
		{name: "unknown falls back to free", role: UserRole("vip"), want: 8},
		{name: "case insensitive", role: UserRole("Pro"), want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlanForRole(tt.role).MonthlyPosts; got != tt.want {
				t.Fatalf("PlanForRole(%v).MonthlyPosts = %d, ожидали %d", tt.role, got, tt.want)
			}
		})
	}
}

func TestUsageStateRemaining(t *testing.T) {
	state := UsageState{Plan: PlanForRole(UserRoleFree), PostsUsed: 6}
	if got := state.Remaining(); got != 2 {
		t.Fatalf("ожидали 2 оставшихся слота, получили %d", got)
	}
	state.PostsUsed = 12
	if got := state.Remaining(); got != 0 {
		t.Fatalf("перерасход не должен давать отрицательный остаток, получили %d", got)
	}
	state.Plan = PlanForRole(UserRoleDeveloper)
	if got := state.Remaining(); got != -1 {
		t.Fatalf("безлимит должен возвращать -1, получили %d", got)
	}
}
