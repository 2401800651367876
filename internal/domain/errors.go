package domain

import "errors"

var (
	// ErrUserNotFound — пользователь не зарегистрирован.
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrSessionNotFound — активной сессии у пользователя нет.
	ErrSessionNotFound = errors.New("активная сессия не найдена")
	// ErrPostNotFound — пост не существует или принадлежит другому пользователю.
	ErrPostNotFound = errors.New("пост не найден")
	// ErrQuotaExceeded — месячный лимит постов исчерпан.
	ErrQuotaExceeded = errors.New("превышен месячный лимит постов")
)
