package domain

import "strings"

// UserRole описывает тариф пользователя.
type UserRole string

const (
	UserRoleFree      UserRole = "free"
	UserRolePlus      UserRole = "plus"
	UserRolePro       UserRole = "pro"
	UserRoleDeveloper UserRole = "developer"
)

// UserPlan описывает ограничения тарифа. MonthlyPosts <= 0 — без лимита.
type UserPlan struct {
	Role         UserRole
	Name         string
	MonthlyPosts int
}

var plans = map[UserRole]UserPlan{
	UserRoleFree: {
		Role:         UserRoleFree,
		Name:         "Free",
		MonthlyPosts: 8,
	},
	UserRolePlus: {
		Role:         UserRolePlus,
		Name:         "Plus",
		MonthlyPosts: 30,
	},
	UserRolePro: {
		Role:         UserRolePro,
		Name:         "Pro",
		MonthlyPosts: 100,
	},
	UserRoleDeveloper: {
		Role:         UserRoleDeveloper,
		Name:         "Developer",
		MonthlyPosts: 0,
	},
}

// PlanForRole возвращает тариф для роли.
func PlanForRole(role UserRole) UserPlan {
	if plan, ok := plans[UserRole(strings.ToLower(string(role)))]; ok {
		return plan
	}
	return plans[UserRoleFree]
}

// Plan возвращает тариф пользователя.
func (u User) Plan() UserPlan {
	return PlanForRole(u.Role)
}

// UsageState описывает текущее положение пользователя относительно лимита.
type UsageState struct {
	Plan      UserPlan
	PostsUsed int
}

// Remaining возвращает оставшееся число слотов. -1 означает отсутствие лимита.
func (s UsageState) Remaining() int {
	if s.Plan.MonthlyPosts <= 0 {
		return -1
	}
	remaining := s.Plan.MonthlyPosts - s.PostsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
